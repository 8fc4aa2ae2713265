// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/stun"
)

func TestParseAddressMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  AddressMode
		valid bool
	}{
		{"", Private, true},
		{"private", Private, true},
		{"Public", Public, true},
		{"literal", Literal, true},
		{"elsewhere", Private, false},
	}

	for _, test := range tests {
		mode, err := ParseAddressMode(test.name)
		if (err == nil) != test.valid {
			t.Fatalf("%q: unexpected error state %v", test.name, err)
		} else if test.valid && mode != test.mode {
			t.Fatalf("%q: parsed %v instead of %v", test.name, mode, test.mode)
		}
	}
}

func TestResolveLiteral(t *testing.T) {
	r := &Resolver{Mode: Literal, Literal: "2001:db8::7"}
	if addr, err := r.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	} else if addr != "2001:db8::7" {
		t.Fatalf("resolved %q", addr)
	}

	r.Literal = "q4s.example.com"
	if _, err := r.Resolve(context.Background()); err == nil {
		t.Fatal("a host name was accepted as literal address")
	}
}

func TestPickAddress(t *testing.T) {
	ipNet := func(s string) net.Addr {
		ip, n, err := net.ParseCIDR(s)
		if err != nil {
			t.Fatal(err)
		}
		n.IP = ip
		return n
	}

	addrs := []net.Addr{
		ipNet("127.0.0.1/8"),
		ipNet("fe80::1/64"),
		ipNet("192.0.2.10/24"),
		ipNet("2001:db8::10/64"),
	}

	if ip := pickAddress(addrs, false); ip.String() != "192.0.2.10" {
		t.Fatalf("picked IPv4 %v", ip)
	}
	if ip := pickAddress(addrs, true); ip.String() != "2001:db8::10" {
		t.Fatalf("picked IPv6 %v", ip)
	}
	if ip := pickAddress(addrs[2:3], true); ip.String() != "192.0.2.10" {
		t.Fatalf("picked fallback %v", ip)
	}
	if ip := pickAddress(addrs[:2], false); ip != nil {
		t.Fatalf("picked %v without a global address", ip)
	}
}

// serveSTUN answers a single binding request with a fixed mapped address.
func serveSTUN(t *testing.T, mapped *net.UDPAddr) string {
	t.Helper()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	go func() {
		buf := make([]byte, 1500)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}

		req := &stun.Message{Raw: append([]byte{}, buf[:n]...)}
		if err := req.Decode(); err != nil {
			return
		}

		resp, err := stun.Build(
			stun.NewTransactionIDSetter(req.TransactionID),
			stun.BindingSuccess,
			&stun.XORMappedAddress{IP: mapped.IP, Port: mapped.Port},
			stun.Fingerprint)
		if err != nil {
			return
		}
		_, _ = pc.WriteTo(resp.Raw, addr)
	}()

	return pc.LocalAddr().String()
}

func TestPublicAddress(t *testing.T) {
	server := serveSTUN(t, &net.UDPAddr{IP: net.IPv4(203, 0, 113, 9), Port: 40000})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := &Resolver{Mode: Public, STUNServer: server}
	if addr, err := r.Resolve(ctx); err != nil {
		t.Fatal(err)
	} else if addr != "203.0.113.9" {
		t.Fatalf("public address is %q", addr)
	}
}
