// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// q4sd is the Q4S server daemon, configured by a TOML file.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/discovery"
	"github.com/q4s/q4s-go/pkg/monitor"
	"github.com/q4s/q4s-go/pkg/server"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

// announce the server's handshake port in the local network.
func announce(conf tomlConfig, addrs server.Addrs, uri string) (*discovery.Manager, error) {
	if conf.Discovery.Interval == 0 {
		conf.Discovery.Interval = 10
	}

	name := conf.Discovery.Name
	if name == "" {
		name, _ = os.Hostname()
	}

	return discovery.NewManager(
		[]discovery.Announcement{{
			Name:          name,
			URI:           uri,
			HandshakePort: uint(addrs.Handshake.(*net.TCPAddr).Port),
		}},
		time.Duration(conf.Discovery.Interval)*time.Second,
		conf.Discovery.IPv4, conf.Discovery.IPv6, nil)
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}
	filename := os.Args[1]

	conf, err := parseConfig(filename)
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}
	configureLogging(conf.Logging)

	serverConf, err := conf.serverConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if conf.Core.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	resolver, err := conf.Address.resolver()
	if err != nil {
		log.WithError(err).Fatal("Invalid address configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr, err := resolver.Resolve(ctx); err != nil {
		log.WithError(err).WithField("mode", resolver.Mode).Warn("Failed to resolve the server's address, none is announced")
	} else {
		serverConf.ServerAddress = addr
	}

	store, err := openStore(conf.Core)
	if err != nil {
		log.WithError(err).Fatal("Failed to open the session store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Closing the session store errored")
		}
	}()

	srv := server.New(serverConf, store)
	if err := srv.Listen(); err != nil {
		log.WithError(err).Fatal("Failed to listen")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx); err != nil {
			log.WithError(err).Error("Server failed")
		}
	}()

	if r, err := newReloader(filename, srv); err != nil {
		log.WithError(err).Warn("Failed to watch the configuration file, reloading is disabled")
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.run(ctx)
		}()
	}

	if conf.Monitor.Listen != "" {
		mon := monitor.New(srv)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.ListenAndServe(ctx, conf.Monitor.Listen); err != nil {
				log.WithError(err).Error("Monitor failed")
			}
		}()
	}

	var manager *discovery.Manager
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		if manager, err = announce(conf, srv.Addrs(), serverConf.URI); err != nil {
			log.WithError(err).Warn("Failed to start the discovery")
		}
	}

	log.WithFields(log.Fields{
		"addresses": srv.Addrs(),
		"store":     withDefault(conf.Core.Store, "memory"),
	}).Info("q4sd is running")

	waitSigint()
	log.Info("Shutting down..")

	if manager != nil {
		manager.Close()
	}

	cancel()
	wg.Wait()
}
