// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/q4s/q4s-go/pkg/message"
)

func TestSessionChannel(t *testing.T) {
	server := newTestMux(t)

	udpConn, err := ListenUDP(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	client := NewPacketMux(udpConn)
	go func() { _ = client.Serve() }()

	tcpLocal, tcpRemote := net.Pipe()
	defer tcpRemote.Close()

	sc := NewSessionChannel(NewStreamSwitch(tcpLocal, tcpLocal), client.Route("s", server.LocalAddr()), tcpLocal, client)
	serverRoute := server.Route("s", nil)
	serverSwitch := NewStreamSwitch(tcpRemote, tcpRemote)
	serverIn, _, _ := serverSwitch.Exchange()

	ready := message.NewRequest(message.Ready, "q4s://localhost")
	ready.Headers.SetStage(0)
	if err := sc.SendControl(ready); err != nil {
		t.Fatal(err)
	}
	if err := sc.SendProbe(ping("s", 7)); err != nil {
		t.Fatal(err)
	}

	select {
	case in := <-serverIn:
		if req, ok := in.Msg.(*message.Request); !ok || req.Method != message.Ready {
			t.Fatalf("expected READY, got %v", in.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	if seq, _ := receive(t, serverRoute).Msg.Header().SequenceNumber(); seq != 7 {
		t.Fatalf("expected sequence number 7, got %d", seq)
	}

	if err := sc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sc.SendControl(ready); err != ErrChannelClosed {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestPipe(t *testing.T) {
	const delay = 20 * time.Millisecond

	a, b := NewPipe(delay)

	sent := time.Now()
	if err := a.SendProbe(ping("p", 1)); err != nil {
		t.Fatal(err)
	}

	ready := message.NewRequest(message.Ready, "q4s://localhost")
	ready.Headers.SetStage(1)
	if err := a.SendControl(ready); err != nil {
		t.Fatal(err)
	}

	select {
	case in := <-b.Control():
		if stage, _ := in.Msg.Header().Stage(); stage != 1 {
			t.Fatalf("unexpected control message %v", in.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	select {
	case in := <-b.Probes():
		if d := in.At.Sub(sent); d < delay {
			t.Fatalf("probe arrived after %v, before the delay of %v", d, delay)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	_ = a.Close()
	select {
	case err := <-b.Errors():
		if err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	if err := b.SendControl(ready); err != ErrChannelClosed {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}
