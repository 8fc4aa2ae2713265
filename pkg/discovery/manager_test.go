// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"testing"

	"github.com/schollz/peerdiscovery"
)

func TestManagerNotify(t *testing.T) {
	payload, err := MarshalAnnouncements([]Announcement{
		{Name: "q4s.example.com", URI: "q4s://q4s.example.com", HandshakePort: 2503},
	})
	if err != nil {
		t.Fatal(err)
	}

	var servers []Server
	manager := &Manager{notifyFunc: func(s Server) { servers = append(servers, s) }}

	manager.notify(peerdiscovery.Discovered{Address: "192.0.2.1", Payload: payload})
	manager.notify(peerdiscovery.Discovered{Address: "fe80::1", Payload: payload})
	manager.notify(peerdiscovery.Discovered{Address: "192.0.2.2", Payload: []byte("garbage")})

	if len(servers) != 2 {
		t.Fatalf("%d servers were notified", len(servers))
	}
	for i, addr := range []string{"192.0.2.1:2503", "[fe80::1]:2503"} {
		if servers[i].HandshakeAddress != addr || servers[i].URI != "q4s://q4s.example.com" {
			t.Fatalf("server %d is %v", i, servers[i])
		}
	}
}

func TestManagerWithoutNetwork(t *testing.T) {
	if _, err := NewManager(nil, 0, false, false, nil); err == nil {
		t.Fatal("Manager without any IP version was created")
	}

	// Closing twice must not panic.
	manager := &Manager{stopChan4: make(chan struct{})}
	manager.Close()
	manager.Close()
}
