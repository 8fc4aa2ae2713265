// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/client"
	"github.com/q4s/q4s-go/pkg/discovery"
	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/session"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging logConf
	Server  serverConf
	Session sessionConf
	Ports   portsConf
	Quality map[string]float64
	Address addressConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// serverConf describes how to reach the server. Without a handshake address, a server is discovered.
type serverConf struct {
	Handshake       string
	URI             string
	IPv4            bool
	IPv6            bool
	DiscoverTimeout uint `toml:"discover-timeout"`
}

// sessionConf describes the Session-configuration block, the client's proposal.
type sessionConf struct {
	Policy        string
	AlertMode     string `toml:"alert-mode"`
	AlertPause    uint   `toml:"alert-pause"`
	RecoveryPause uint   `toml:"recovery-pause"`
}

// portsConf describes the client's Q4S and application ports.
type portsConf struct {
	TCP    int
	UDP    int
	AppTCP string `toml:"app-tcp"`
	AppUDP string `toml:"app-udp"`
}

// addressConf describes the Address-configuration block, the client's announced address.
type addressConf struct {
	Mode       string
	Literal    string
	STUNServer string `toml:"stun-server"`
	IPv6       bool
}

// parseConfig reads a TOML configuration file.
func parseConfig(filename string) (conf tomlConfig, err error) {
	_, err = toml.DecodeFile(filename, &conf)
	return
}

// configureLogging applies the Logging-configuration block to logrus' standard logger.
func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

func (a addressConf) resolver() (*discovery.Resolver, error) {
	mode, err := discovery.ParseAddressMode(a.Mode)
	if err != nil {
		return nil, err
	}

	return &discovery.Resolver{
		Mode:       mode,
		Literal:    a.Literal,
		STUNServer: a.STUNServer,
		IPv6:       a.IPv6,
	}, nil
}

// discoverTimeout defaults to ten seconds.
func (s serverConf) discoverTimeout() time.Duration {
	if s.DiscoverTimeout == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.DiscoverTimeout) * time.Second
}

// clientConfig derives the client.Config for a server's URI, collecting every invalid setting. The client's address
// is filled in later.
func (conf tomlConfig) clientConfig(uri string) (cfg client.Config, err error) {
	s := session.New()

	s.Addresses.ClientQ4SPorts = session.Ports{TCP: conf.Ports.TCP, UDP: conf.Ports.UDP}
	if s.Addresses.ClientQ4SPorts == (session.Ports{}) {
		s.Addresses.ClientQ4SPorts = session.Ports{TCP: 2501, UDP: 2502}
	}
	s.Addresses.ClientAppPorts = session.AppPorts{TCP: conf.Ports.AppTCP, UDP: conf.Ports.AppUDP}

	for _, port := range []int{s.Addresses.ClientQ4SPorts.TCP, s.Addresses.ClientQ4SPorts.UDP} {
		if port < 0 || port > 65535 {
			err = multierror.Append(err, fmt.Errorf("ports: invalid port %d", port))
		}
	}

	for name, value := range conf.Quality {
		m, fieldErr := s.Quality.Field(name)
		if fieldErr != nil {
			err = multierror.Append(err, fmt.Errorf("quality: %w", fieldErr))
			continue
		}
		if value < 0 {
			err = multierror.Append(err, fmt.Errorf("quality: negative %s %v", name, value))
			continue
		}
		*m = measure.Some(value)
	}

	if conf.Session.AlertMode != "" {
		if mode, modeErr := alert.ParseMode(conf.Session.AlertMode); modeErr != nil {
			err = multierror.Append(err, fmt.Errorf("session: %w", modeErr))
		} else {
			s.Alert.Mode = mode
		}
	}
	if conf.Session.AlertPause > 0 {
		s.Alert.AlertPause = time.Duration(conf.Session.AlertPause) * time.Millisecond
	}
	if conf.Session.RecoveryPause > 0 {
		s.Alert.RecoveryPause = time.Duration(conf.Session.RecoveryPause) * time.Millisecond
	}

	policy, policyErr := measure.ParseFailurePolicy(conf.Session.Policy)
	if policyErr != nil {
		err = multierror.Append(err, fmt.Errorf("session: %w", policyErr))
	}

	cfg = client.Config{
		Session: s,
		URI:     uri,
		Policy:  policy,
	}
	return
}
