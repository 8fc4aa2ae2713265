// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"
)

// ErrNoServer is returned by Discover if no server was announced in time.
var ErrNoServer = errors.New("no Q4S server was discovered")

// Server discovered through an Announcement.
type Server struct {
	Announcement

	// HandshakeAddress is the announcing host's address joined with the announced port.
	HandshakeAddress string
}

func (s Server) String() string {
	return fmt.Sprintf("Server(%s,%s)", s.Name, s.HandshakeAddress)
}

// Manager publishes and receives Announcements.
type Manager struct {
	notifyFunc func(Server)

	stopChan4 chan struct{}
	stopChan6 chan struct{}
	closeOnce sync.Once
}

// NewManager for Announcements will be created and started. Each received Announcement is passed to notifyFunc, which
// might be nil for a Manager only publishing.
func NewManager(
	announcements []Announcement, announcementInterval time.Duration,
	ipv4, ipv6 bool, notifyFunc func(Server)) (*Manager, error) {

	if !ipv4 && !ipv6 {
		return nil, errors.New("neither IPv4 nor IPv6 discovery is enabled")
	}

	var manager = &Manager{
		notifyFunc: notifyFunc,
	}
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval":      announcementInterval,
		"IPv4":          ipv4,
		"IPv6":          ipv6,
		"announcements": announcements,
	}).Info("Starting discovery Manager")

	msg, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, address4, manager.stopChan4, peerdiscovery.IPv4, manager.notify},
		{ipv6, address6, manager.stopChan6, peerdiscovery.IPv6, manager.notify},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             strconv.Itoa(port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            announcementInterval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				manager.Close()
				return nil, discoverErr
			}

		case <-time.After(time.Second):
		}
	}

	return manager, nil
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithError(err).WithField("peer", discovered.Address).Debug(
			"Discovery failed to parse an incoming package")
		return
	}

	if manager.notifyFunc == nil {
		return
	}

	for _, announcement := range announcements {
		server := Server{
			Announcement:     announcement,
			HandshakeAddress: net.JoinHostPort(discovered.Address, strconv.Itoa(int(announcement.HandshakePort))),
		}

		log.WithField("server", server).Debug("Discovery received an Announcement")
		manager.notifyFunc(server)
	}
}

// Close this Manager.
func (manager *Manager) Close() {
	manager.closeOnce.Do(func() {
		for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
			if c != nil {
				close(c)
			}
		}
	})
}

// Discover the first announced Q4S server. Discover announces nothing itself and returns ErrNoServer when the context
// is done before any Announcement was received.
func Discover(ctx context.Context, ipv4, ipv6 bool) (Server, error) {
	found := make(chan Server, 1)
	manager, err := NewManager(nil, time.Second, ipv4, ipv6, func(s Server) {
		select {
		case found <- s:
		default:
		}
	})
	if err != nil {
		return Server{}, err
	}
	defer manager.Close()

	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		return Server{}, fmt.Errorf("%w: %v", ErrNoServer, ctx.Err())
	}
}
