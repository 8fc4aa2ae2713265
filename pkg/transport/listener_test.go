// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestListenerAccepts(t *testing.T) {
	accepted := make(chan net.Conn, 1)

	listener := NewListener("127.0.0.1:0", func(conn net.Conn) {
		accepted <- conn
	})
	if err := listener.Start(); err != nil {
		t.Fatal(err)
	}

	conn, err := DialTCP(context.Background(), listener.Addr().String(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case c := <-accepted:
		_ = c.Close()
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	if err := listener.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := DialTCP(context.Background(), listener.Addr().String(), 0); err == nil {
		t.Fatal("dialing a closed Listener succeeded")
	}
}
