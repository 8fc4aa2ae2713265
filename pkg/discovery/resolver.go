// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/pion/stun"
	log "github.com/sirupsen/logrus"
)

// DefaultSTUNServer is queried for a public address if no other server is configured.
const DefaultSTUNServer = "stun.l.google.com:19302"

// ErrNoAddress is returned if no suitable local address exists.
var ErrNoAddress = errors.New("no suitable local address")

// AddressMode selects the address a host announces.
type AddressMode int

const (
	// Private is the address of a local network interface.
	Private AddressMode = iota

	// Public is the address as seen by a STUN server.
	Public

	// Literal is a configured address.
	Literal
)

func (m AddressMode) String() string {
	switch m {
	case Private:
		return "private"
	case Public:
		return "public"
	case Literal:
		return "literal"
	default:
		return fmt.Sprintf("AddressMode(%d)", int(m))
	}
}

// ParseAddressMode from its name. An empty name is Private.
func ParseAddressMode(s string) (AddressMode, error) {
	switch strings.ToLower(s) {
	case "", "private":
		return Private, nil
	case "public":
		return Public, nil
	case "literal":
		return Literal, nil
	default:
		return Private, fmt.Errorf("unknown address mode %q", s)
	}
}

// AddressResolver finds a host's own address.
type AddressResolver interface {
	LocalAddress() (string, error)
	PublicAddress(ctx context.Context) (string, error)
}

// Resolver is the AddressResolver for this host.
type Resolver struct {
	Mode AddressMode

	// Literal is the address of the Literal mode.
	Literal string

	// STUNServer for the Public mode, DefaultSTUNServer if empty.
	STUNServer string

	// IPv6 prefers IPv6 addresses.
	IPv6 bool
}

// Resolve the address according to the Mode.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	switch r.Mode {
	case Literal:
		if net.ParseIP(r.Literal) == nil {
			return "", fmt.Errorf("literal address %q is no IP address", r.Literal)
		}
		return r.Literal, nil

	case Public:
		return r.PublicAddress(ctx)

	default:
		return r.LocalAddress()
	}
}

// LocalAddress is the first global unicast address of an active, non-loopback interface.
func (r *Resolver) LocalAddress() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			log.WithError(err).WithField("interface", iface.Name).Debug("Resolver failed to list addresses")
			continue
		}
		addrs = append(addrs, ifaceAddrs...)
	}

	if ip := pickAddress(addrs, r.IPv6); ip != nil {
		return ip.String(), nil
	}
	return "", ErrNoAddress
}

// pickAddress returns the first global unicast IP of the preferred version, or any other global unicast IP.
func pickAddress(addrs []net.Addr, ipv6 bool) (fallback net.IP) {
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || !ipNet.IP.IsGlobalUnicast() {
			continue
		}

		ip := ipNet.IP
		if (ip.To4() == nil) == ipv6 {
			return ip
		} else if fallback == nil {
			fallback = ip
		}
	}
	return
}

// PublicAddress queries a STUN server for this host's address.
func (r *Resolver) PublicAddress(ctx context.Context) (string, error) {
	server := r.STUNServer
	if server == "" {
		server = DefaultSTUNServer
	}

	network := "udp4"
	if r.IPv6 {
		network = "udp6"
	}

	client, err := stun.Dial(network, server)
	if err != nil {
		return "", fmt.Errorf("dialing STUN server %s: %w", server, err)
	}
	defer client.Close()

	errChan, ipChan := make(chan error, 1), make(chan string, 1)
	request := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	err = client.Start(request, func(ev stun.Event) {
		if ev.Error != nil {
			errChan <- ev.Error
			return
		}

		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(ev.Message); err != nil {
			errChan <- err
			return
		}
		ipChan <- xorAddr.IP.String()
	})
	if err != nil {
		return "", fmt.Errorf("querying STUN server %s: %w", server, err)
	}

	select {
	case err := <-errChan:
		return "", fmt.Errorf("querying STUN server %s: %w", server, err)

	case ip := <-ipChan:
		log.WithFields(log.Fields{
			"stun":    server,
			"address": ip,
		}).Debug("Resolver learned the public address")
		return ip, nil

	case <-ctx.Done():
		return "", ctx.Err()
	}
}
