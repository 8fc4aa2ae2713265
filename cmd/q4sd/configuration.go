// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/discovery"
	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/server"
	"github.com/q4s/q4s-go/pkg/storage"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Listen    listenConf
	Alert     alertConf
	Procedure procedureConf
	Bounds    map[string]rangeConf
	Discovery discoveryConf
	Monitor   monitorConf
	Address   addressConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Store          string
	Path           string
	URI            string
	TriggerURI     string `toml:"trigger-uri"`
	Policy         string
	SessionTimeout uint `toml:"session-timeout"`
	Profile        bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// listenConf describes the Listen-configuration block.
type listenConf struct {
	Handshake string
	TCP       string
	UDP       string
	Rate      float64
	Burst     int
}

// alertConf describes the Alert-configuration block, pauses in milliseconds.
type alertConf struct {
	Mode          string
	AlertPause    uint `toml:"alert-pause"`
	RecoveryPause uint `toml:"recovery-pause"`
}

// procedureConf describes the Procedure-configuration block. Each zero value keeps the default.
type procedureConf struct {
	NegotiationPingUp    int `toml:"negotiation-ping-up"`
	NegotiationPingDown  int `toml:"negotiation-ping-down"`
	ContinuityPingUp     int `toml:"continuity-ping-up"`
	ContinuityPingDown   int `toml:"continuity-ping-down"`
	NegotiationBandwidth int `toml:"negotiation-bandwidth"`
	WindowUp             int `toml:"window-up"`
	WindowDown           int `toml:"window-down"`
	LossWindowUp         int `toml:"loss-window-up"`
	LossWindowDown       int `toml:"loss-window-down"`
}

// rangeConf describes one [bounds.<field>] block.
type rangeConf struct {
	Min *float64
	Max *float64
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
	Name     string
}

// monitorConf describes the Monitor-configuration block.
type monitorConf struct {
	Listen string
}

// addressConf describes the Address-configuration block, the server's announced address.
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

func (p procedureConf) procedure() measure.Procedure {
	return measure.Procedure{
		NegotiationPingUp:    p.NegotiationPingUp,
		NegotiationPingDown:  p.NegotiationPingDown,
		ContinuityPingUp:     p.ContinuityPingUp,
		ContinuityPingDown:   p.ContinuityPingDown,
		NegotiationBandwidth: p.NegotiationBandwidth,
		WindowUp:             p.WindowUp,
		WindowDown:           p.WindowDown,
		LossWindowUp:         p.LossWindowUp,
		LossWindowDown:       p.LossWindowDown,
	}
}

// parseBounds from the [bounds.<field>] blocks.
func parseBounds(conf map[string]rangeConf) (bounds measure.Bounds, err error) {
	for name, rc := range conf {
		r, fieldErr := bounds.Field(name)
		if fieldErr != nil {
			err = multierror.Append(err, fmt.Errorf("bounds: %w", fieldErr))
			continue
		}

		if rc.Min != nil {
			r.Min = measure.Some(*rc.Min)
		}
		if rc.Max != nil {
			r.Max = measure.Some(*rc.Max)
		}
	}

	if err == nil {
		err = bounds.CheckValid()
	}
	return
}

// pauses in the Alert-configuration block. A zero pause keeps each client's proposal.
func (a alertConf) pauses() (alertPause, recoveryPause time.Duration) {
	return time.Duration(a.AlertPause) * time.Millisecond, time.Duration(a.RecoveryPause) * time.Millisecond
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

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// serverConfig derives the server.Config, collecting every invalid setting.
func (conf tomlConfig) serverConfig() (cfg server.Config, err error) {
	cfg = server.Config{
		HandshakeAddress: withDefault(conf.Listen.Handshake, ":2503"),
		TCPAddress:       withDefault(conf.Listen.TCP, ":2504"),
		UDPAddress:       withDefault(conf.Listen.UDP, ":2505"),

		URI:        conf.Core.URI,
		TriggerURI: conf.Core.TriggerURI,
		Procedure:  conf.Procedure.procedure(),

		HandshakeRate:  conf.Listen.Rate,
		HandshakeBurst: conf.Listen.Burst,
		SessionTimeout: time.Duration(conf.Core.SessionTimeout) * time.Second,
	}
	cfg.AlertPause, cfg.RecoveryPause = conf.Alert.pauses()

	for _, addr := range []string{cfg.HandshakeAddress, cfg.TCPAddress, cfg.UDPAddress} {
		if _, port, splitErr := net.SplitHostPort(addr); splitErr != nil {
			err = multierror.Append(err, fmt.Errorf("listen: %w", splitErr))
		} else if _, atoiErr := strconv.Atoi(port); atoiErr != nil {
			err = multierror.Append(err, fmt.Errorf("listen: invalid port in %q", addr))
		}
	}

	if cfg.URI == "" {
		host, _, _ := net.SplitHostPort(cfg.HandshakeAddress)
		cfg.URI = "q4s://" + withDefault(host, "localhost")
	}

	if policy, policyErr := measure.ParseFailurePolicy(conf.Core.Policy); policyErr != nil {
		err = multierror.Append(err, fmt.Errorf("core: %w", policyErr))
	} else {
		cfg.Policy = policy
	}

	if conf.Alert.Mode != "" {
		if mode, modeErr := alert.ParseMode(conf.Alert.Mode); modeErr != nil {
			err = multierror.Append(err, fmt.Errorf("alert: %w", modeErr))
		} else {
			cfg.AlertMode = mode
		}
	}

	if bounds, boundsErr := parseBounds(conf.Bounds); boundsErr != nil {
		err = multierror.Append(err, boundsErr)
	} else {
		cfg.Bounds = bounds
	}

	if conf.Listen.Rate < 0 {
		err = multierror.Append(err, fmt.Errorf("listen: negative rate %v", conf.Listen.Rate))
	}

	return
}

// openStore creates the Store selected in the Core-configuration block.
func openStore(conf coreConf) (storage.Store, error) {
	switch conf.Store {
	case "", "memory":
		return storage.NewMemoryStore(), nil

	case "badger":
		if conf.Path == "" {
			return nil, fmt.Errorf("core.path is empty")
		}
		bs, err := storage.NewBadgerStore(conf.Path)
		if err != nil {
			return nil, err
		}
		return bs, nil

	default:
		return nil, fmt.Errorf("unknown core.store \"%s\"", conf.Store)
	}
}
