// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/measure"
)

func populatedSession() *Session {
	s := New()
	s.ID = "8c0a3f2e-1d5b-4c2a-9e41-0b7f3d6a5c21"
	s.Alert = alert.State{
		QosLevelUp:    3,
		QosLevelDown:  2,
		AlertPause:    1500 * time.Millisecond,
		RecoveryPause: 900 * time.Millisecond,
		Mode:          alert.Q4SAwareNetwork,
	}
	s.Addresses = Addresses{
		ClientAddressType: 4,
		ClientAddress:     "192.0.2.10",
		ServerAddressType: 6,
		ServerAddress:     "2001:db8::1",
		ClientQ4SPorts:    Ports{TCP: 2501, UDP: 2502},
		ServerQ4SPorts:    Ports{TCP: 2504, UDP: 2505},
		ClientAppPorts:    AppPorts{TCP: "500-505", UDP: "600"},
		ServerAppPorts:    AppPorts{TCP: "80", UDP: "5000-5010"},
	}
	s.Procedure = measure.Procedure{
		NegotiationPingUp:    30,
		NegotiationPingDown:  40,
		ContinuityPingUp:     50,
		ContinuityPingDown:   60,
		NegotiationBandwidth: 3,
		WindowUp:             100,
		WindowDown:           110,
		LossWindowUp:         120,
		LossWindowDown:       130,
	}
	s.Quality = measure.MeasurementSet{
		Latency:        measure.Some(100),
		JitterUp:       measure.Some(20),
		JitterDown:     measure.Some(15.5),
		BandwidthUp:    measure.Some(570),
		BandwidthDown:  measure.Some(550),
		PacketLossUp:   measure.Some(0.5),
		PacketLossDown: measure.Some(0.25),
	}
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := populatedSession()

	decoded, err := Decode(Encode(s))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDecodePartial(t *testing.T) {
	s := New()
	s.Quality.Latency = measure.Some(80)
	s.Quality.BandwidthDown = measure.Some(1000)
	s.Addresses.ClientQ4SPorts = Ports{TCP: 2501, UDP: 2502}

	sdp := Encode(s)
	if !strings.HasPrefix(sdp, "o=q4s - ") {
		t.Fatalf("origin line without id placeholder: %q", sdp)
	}
	if strings.Contains(sdp, "a=jitter") || strings.Contains(sdp, "a=flow:app") {
		t.Fatalf("unset fields were encoded: %q", sdp)
	}

	decoded, err := Decode(sdp)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDropsZeroTargets(t *testing.T) {
	s := New()
	s.Quality.Latency = measure.Some(80)
	s.Quality.PacketLossUp = measure.Some(0)
	s.Quality.PacketLossDown = measure.Some(0.01)

	sdp := Encode(s)
	if !strings.Contains(sdp, "a=packetloss:0/0.01") {
		t.Fatalf("packet loss was not encoded: %q", sdp)
	}

	decoded, err := Decode(sdp)
	if err != nil {
		t.Fatal(err)
	}

	expected := measure.MeasurementSet{
		Latency:        measure.Some(80),
		PacketLossDown: measure.Some(0.01),
	}
	if diff := cmp.Diff(expected, decoded.Quality); diff != "" {
		t.Fatalf("quality mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateKeepsKnownValues(t *testing.T) {
	s := populatedSession()
	expected := s.Clone()
	expected.Alert.QosLevelUp = 0

	n := s.Update("a=latency:0\r\n" +
		"a=jitter:abc/0\r\n" +
		"a=bandwidth:NaN/\r\n" +
		"a=alert-pause:0\r\n" +
		"a=measurement:procedure default(0/0,x/0,0,0/0,0/0)\r\n" +
		"a=flow:q4s clientListeningPort TCP/0\r\n" +
		"a=qos-level:0/x\r\n" +
		"a=unknown:42\r\n" +
		"b=ignored\r\n")

	if n != 7 {
		t.Fatalf("Update recognized %d lines", n)
	}
	if diff := cmp.Diff(expected, s); diff != "" {
		t.Fatalf("Update mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateFromPeer(t *testing.T) {
	s := New()
	s.Update("o=q4s abc 2353687637 IN IP4 198.51.100.7\r\n" +
		"a=public-address:server 4 198.51.100.7\r\n" +
		"a=alerting-mode:reactive\r\n" +
		"a=flow:q4s serverListeningPort UDP/2505\r\n")

	if s.ID != "abc" {
		t.Fatalf("ID is %q", s.ID)
	}
	if s.Addresses.ServerAddress != "198.51.100.7" || s.Addresses.ServerAddressType != 4 {
		t.Fatalf("server address is %v", s.Addresses)
	}
	if s.Addresses.ServerQ4SPorts.UDP != 2505 {
		t.Fatalf("server UDP port is %d", s.Addresses.ServerQ4SPorts.UDP)
	}
	if s.Alert.Mode != alert.Reactive {
		t.Fatalf("alerting mode is %v", s.Alert.Mode)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode("v=0\r\ns=nothing\r\n"); err != ErrEmptyDescriptor {
		t.Fatalf("expected ErrEmptyDescriptor, got %v", err)
	}
}

func TestAddressType(t *testing.T) {
	var a Addresses
	a.SetClientAddress("::1")
	a.SetServerAddress("127.0.0.1")

	if a.ClientAddressType != 6 || a.ServerAddressType != 4 {
		t.Fatalf("address types are %d/%d", a.ClientAddressType, a.ServerAddressType)
	}

	a.ServerQ4SPorts.UDP = 2505
	if addr := a.ServerUDP(); addr != "127.0.0.1:2505" {
		t.Fatalf("server UDP address is %q", addr)
	}
}
