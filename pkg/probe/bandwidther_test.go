// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
)

func TestBandwidtherMeasure(t *testing.T) {
	b := &Bandwidther{
		config:   BandwidtherConfig{ExpectRate: 800},
		received: map[uint64]struct{}{},
	}

	if m := b.measure(false); !m.IsEmpty() {
		t.Fatalf("running Measure without BWIDTHs is %v", m)
	}
	if m := b.measure(true); m.PacketLoss != measure.Some(1) || m.Bandwidth != measure.Some(0) {
		t.Fatalf("final Measure without BWIDTHs is %v", m)
	}

	for _, seq := range []uint64{0, 1, 2, 4, 5, 7, 8, 9} {
		req := newProbe(message.Bwidth, "q4s://localhost", "", seq, measure.Measure{})
		b.receivedBwidth(req)
	}

	m := b.measure(true)
	if loss, _ := m.PacketLoss.Get(); loss < 0.1999 || loss > 0.2001 {
		t.Fatalf("packet loss is %v", m.PacketLoss)
	}
	if bw, _ := m.Bandwidth.Get(); bw < 639.99 || bw > 640.01 {
		t.Fatalf("bandwidth is %v", m.Bandwidth)
	}

	b.config.ExpectRate = 0
	if m := b.measure(true); !m.IsEmpty() {
		t.Fatalf("Measure without expected BWIDTHs is %v", m)
	}
}

func TestBandwidtherPair(t *testing.T) {
	toServer, toClient := newPipe(t, time.Millisecond), newPipe(t, time.Millisecond)

	client := NewBandwidther(BandwidtherConfig{
		SessionID:     "pair",
		URI:           "q4s://localhost",
		SendRate:      400,
		ExpectRate:    800,
		Duration:      500 * time.Millisecond,
		FinalizeDelay: 200 * time.Millisecond,
		Proactive:     true,
	}, toServer)
	server := NewBandwidther(BandwidtherConfig{
		SessionID:     "pair",
		URI:           "q4s://localhost",
		SendRate:      800,
		ExpectRate:    400,
		Duration:      500 * time.Millisecond,
		FinalizeDelay: 200 * time.Millisecond,
	}, toClient)

	toServer.connect(server)
	toClient.connect(client)

	clientResult, err := waitEngine(t, client, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	serverResult, err := waitEngine(t, server, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if m := clientResult.Local; m.PacketLoss != measure.Some(0) || m.Bandwidth != measure.Some(800) {
		t.Fatalf("client measured %v", m)
	}
	if m := serverResult.Local; m.PacketLoss != measure.Some(0) || m.Bandwidth != measure.Some(400) {
		t.Fatalf("server measured %v", m)
	}
	if !clientResult.Remote.Bandwidth.Valid {
		t.Fatalf("client received no report: %v", clientResult.Remote)
	}

	// 50 and 100 datagrams per second for half a second
	if n := toServer.count(); n < 15 || n > 30 {
		t.Fatalf("client sent %d BWIDTHs", n)
	}
	if n := toClient.count(); n < 35 || n > 55 {
		t.Fatalf("server sent %d BWIDTHs", n)
	}
}

func TestBandwidtherLoss(t *testing.T) {
	toServer, toClient := newPipe(t, time.Millisecond), newPipe(t, time.Millisecond)
	toServer.drop = func(msg message.Message) bool { return seqOf(msg)%2 == 1 }

	client := NewBandwidther(BandwidtherConfig{
		URI:           "q4s://localhost",
		SendRate:      800,
		Duration:      300 * time.Millisecond,
		FinalizeDelay: 100 * time.Millisecond,
	}, toServer)
	server := NewBandwidther(BandwidtherConfig{
		URI:           "q4s://localhost",
		ExpectRate:    800,
		Duration:      300 * time.Millisecond,
		FinalizeDelay: 100 * time.Millisecond,
	}, toClient)

	toServer.connect(server)
	toClient.connect(client)

	result, err := waitEngine(t, server, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	// Every second BWIDTH is lost; the last one received has an even sequence number.
	if loss, _ := result.Local.PacketLoss.Get(); loss < 0.4 || loss > 0.5 {
		t.Fatalf("packet loss is %v", result.Local.PacketLoss)
	}
	if n := toClient.count(); n != 0 {
		t.Fatalf("server sent %d BWIDTHs without a rate", n)
	}
}

func TestBandwidtherCancel(t *testing.T) {
	b := NewBandwidther(BandwidtherConfig{ExpectRate: 800, Duration: time.Second}, newPipe(t, time.Millisecond))

	b.Cancel()
	if _, err := waitEngine(t, b, time.Second); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	b.Cancel()
}
