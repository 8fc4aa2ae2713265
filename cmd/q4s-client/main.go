// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// q4s-client negotiates a Q4S session with a server and reports its progress until being interrupted.
package main

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/client"
	"github.com/q4s/q4s-go/pkg/discovery"
)

// findServer returns the configured handshake address and URI or discovers a server.
func findServer(ctx context.Context, conf serverConf) (handshake, uri string, err error) {
	if conf.Handshake != "" {
		uri = conf.URI
		if uri == "" {
			uri = "q4s://" + conf.Handshake
		}
		return conf.Handshake, uri, nil
	}

	if !conf.IPv4 && !conf.IPv6 {
		conf.IPv4 = true
	}

	ctx, cancel := context.WithTimeout(ctx, conf.discoverTimeout())
	defer cancel()

	server, err := discovery.Discover(ctx, conf.IPv4, conf.IPv6)
	if err != nil {
		return "", "", err
	}

	log.WithField("server", server).Info("Discovered a Q4S server")
	return server.HandshakeAddress, server.URI, nil
}

// logEvent of the client's session.
func logEvent(e client.Event) {
	entry := log.WithField("event", e.Kind)

	switch e.Kind {
	case client.EventMeasure:
		entry.WithFields(log.Fields{
			"stage":    e.Stage,
			"met":      e.Met,
			"measured": e.Measured,
		}).Info("Measured")

	case client.EventCompleted:
		entry.WithField("trigger", e.TriggerURI).Info("Negotiation completed")

	case client.EventAlert, client.EventRecovery:
		entry.Warn("Server reported a quality change")

	case client.EventError:
		entry.WithError(e.Err).Error("Session failed")

	default:
		entry.Info("Session event")
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}
	configureLogging(conf.Logging)

	resolver, err := conf.Address.resolver()
	if err != nil {
		log.WithError(err).Fatal("Invalid address configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	handshake, uri, err := findServer(ctx, conf.Server)
	if err != nil {
		log.WithError(err).Fatal("Failed to find a Q4S server")
	}

	clientConf, err := conf.clientConfig(uri)
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if addr, err := resolver.Resolve(ctx); err != nil {
		log.WithError(err).WithField("mode", resolver.Mode).Warn("Failed to resolve the client's address, the server will use the connection's one")
	} else {
		clientConf.Session.Addresses.SetClientAddress(addr)
	}

	c := client.New(clientConf, &client.TCPDialer{HandshakeAddress: handshake})

	go func() {
		for e := range c.Events() {
			logEvent(e)
		}
	}()

	log.WithFields(log.Fields{
		"server": handshake,
		"uri":    uri,
	}).Info("Starting Q4S session")

	if err := c.Run(ctx); err != nil {
		log.WithError(err).Fatal("Session ended with an error")
	}
	log.Info("Session ended")
}
