// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/measure"
)

// ErrEmptyDescriptor is returned by Decode for data without any known line.
var ErrEmptyDescriptor = errors.New("session descriptor contains no known line")

// Encode a Session into its session descriptor.
//
// Zero marks an unset value in the descriptor, so a quality target of exactly
// zero, such as a packet loss of 0, is encoded but lost on decoding. Use a
// small positive value for a lossless target.
func Encode(s *Session) string {
	var b strings.Builder
	line := func(format string, a ...interface{}) {
		fmt.Fprintf(&b, format, a...)
		b.WriteString("\r\n")
	}

	id := s.ID
	if id == "" {
		id = "-"
	}
	addrType, addr := s.Addresses.ServerAddressType, s.Addresses.ServerAddress
	if addr == "" {
		addrType, addr = s.Addresses.ClientAddressType, s.Addresses.ClientAddress
	}
	if addr == "" {
		addr = "0.0.0.0"
	}
	line("o=q4s %s %d IN %s %s", id, s.Created.Unix(), addressTypeName(addrType), addr)

	line("a=qos-level:%d/%d", s.Alert.QosLevelUp, s.Alert.QosLevelDown)
	line("a=alerting-mode:%v", s.Alert.Mode)
	line("a=alert-pause:%d", s.Alert.AlertPause.Milliseconds())
	line("a=recovery-pause:%d", s.Alert.RecoveryPause.Milliseconds())

	if a := s.Addresses; a.ClientAddress != "" {
		line("a=public-address:client %s %s", addressTypeName(a.ClientAddressType), a.ClientAddress)
	}
	if a := s.Addresses; a.ServerAddress != "" {
		line("a=public-address:server %s %s", addressTypeName(a.ServerAddressType), a.ServerAddress)
	}

	line("a=measurement:procedure default%v", s.Procedure)

	q := s.Quality
	if q.Latency.Valid {
		line("a=latency:%v", q.Latency)
	}
	for _, pair := range []struct {
		name     string
		up, down measure.Metric
	}{
		{"jitter", q.JitterUp, q.JitterDown},
		{"bandwidth", q.BandwidthUp, q.BandwidthDown},
		{"packetloss", q.PacketLossUp, q.PacketLossDown},
	} {
		if pair.up.Valid || pair.down.Valid {
			line("a=%s:%s/%s", pair.name, formatPairValue(pair.up), formatPairValue(pair.down))
		}
	}

	for _, f := range flows(&s.Addresses) {
		if value := f.value(); value != "" {
			line("a=flow:%s %sListeningPort %s/%s", f.channel, f.side, f.protocol, value)
		}
	}

	return b.String()
}

// formatPairValue writes an unset Metric as 0, which is skipped on decoding.
func formatPairValue(m measure.Metric) string {
	if !m.Valid {
		return "0"
	}
	return m.String()
}

// Decode a new Session from a session descriptor.
func Decode(sdp string) (*Session, error) {
	s := New()
	if n := s.Update(sdp); n == 0 {
		return nil, ErrEmptyDescriptor
	}
	return s, nil
}

// Update this Session from a session descriptor and return the number of
// known lines. A numeric value of zero or an unparsable one never replaces
// a known value; qos-level is the exception, zero is a valid level there.
// Unknown lines are ignored.
func (s *Session) Update(sdp string) (known int) {
	for _, line := range strings.Split(sdp, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "o=") {
			s.updateOrigin(line[2:])
			known++
			continue
		}

		attr, value, found := strings.Cut(strings.TrimPrefix(line, "a="), ":")
		if !strings.HasPrefix(line, "a=") || !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch attr {
		case "qos-level":
			up, down, _ := strings.Cut(value, "/")
			if n, err := strconv.Atoi(up); err == nil {
				s.Alert.QosLevelUp = n
			}
			if n, err := strconv.Atoi(down); err == nil {
				s.Alert.QosLevelDown = n
			}

		case "alerting-mode":
			if mode, err := alert.ParseMode(value); err == nil {
				s.Alert.Mode = mode
			}

		case "alert-pause":
			if v, ok := parseNonZero(value); ok {
				s.Alert.AlertPause = time.Duration(v) * time.Millisecond
			}

		case "recovery-pause":
			if v, ok := parseNonZero(value); ok {
				s.Alert.RecoveryPause = time.Duration(v) * time.Millisecond
			}

		case "public-address":
			s.updatePublicAddress(value)

		case "measurement":
			if p, err := measure.ParseProcedure(strings.TrimPrefix(value, "procedure")); err == nil {
				s.Procedure.Merge(p)
			}

		case "latency":
			setNonZero(&s.Quality.Latency, value)

		case "jitter":
			setPair(&s.Quality.JitterUp, &s.Quality.JitterDown, value)

		case "bandwidth":
			setPair(&s.Quality.BandwidthUp, &s.Quality.BandwidthDown, value)

		case "packetloss":
			setPair(&s.Quality.PacketLossUp, &s.Quality.PacketLossDown, value)

		case "flow":
			s.updateFlow(value)

		default:
			continue
		}
		known++
	}
	return
}

func (s *Session) updateOrigin(value string) {
	// q4s <id> <timestamp> IN <type> <address>
	fields := strings.Fields(value)
	if len(fields) > 1 && fields[1] != "-" {
		s.ID = fields[1]
	}
	if len(fields) > 2 {
		if ts, err := strconv.ParseInt(fields[2], 10, 64); err == nil && ts > 0 {
			s.Created = time.Unix(ts, 0)
		}
	}
}

func (s *Session) updatePublicAddress(value string) {
	// {client|server} <type> <address>
	fields := strings.Fields(value)
	if len(fields) != 3 {
		return
	}

	addrType, ok := parseAddressType(fields[1])
	if !ok {
		return
	}

	switch fields[0] {
	case "client":
		s.Addresses.ClientAddressType, s.Addresses.ClientAddress = addrType, fields[2]
	case "server":
		s.Addresses.ServerAddressType, s.Addresses.ServerAddress = addrType, fields[2]
	}
}

func (s *Session) updateFlow(value string) {
	// {app|q4s} {client|server}ListeningPort {TCP|UDP}/<value>
	fields := strings.Fields(value)
	if len(fields) != 3 {
		return
	}

	protocol, port, found := strings.Cut(fields[2], "/")
	if !found || port == "" {
		return
	}

	for _, f := range flows(&s.Addresses) {
		if f.channel == fields[0] && f.side+"ListeningPort" == fields[1] && f.protocol == protocol {
			f.set(port)
			return
		}
	}
}

// flow is one of the eight flow lines, bound to its Addresses field.
type flow struct {
	channel  string
	side     string
	protocol string

	value func() string
	set   func(string)
}

func appFlow(side, protocol string, p *string) flow {
	return flow{"app", side, protocol,
		func() string { return *p },
		func(v string) { *p = v }}
}

func q4sFlow(side, protocol string, p *int) flow {
	return flow{"q4s", side, protocol,
		func() string {
			if *p <= 0 {
				return ""
			}
			return strconv.Itoa(*p)
		},
		func(v string) {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*p = n
			}
		}}
}

func flows(a *Addresses) []flow {
	return []flow{
		appFlow("client", "TCP", &a.ClientAppPorts.TCP),
		appFlow("client", "UDP", &a.ClientAppPorts.UDP),
		appFlow("server", "TCP", &a.ServerAppPorts.TCP),
		appFlow("server", "UDP", &a.ServerAppPorts.UDP),
		q4sFlow("client", "TCP", &a.ClientQ4SPorts.TCP),
		q4sFlow("client", "UDP", &a.ClientQ4SPorts.UDP),
		q4sFlow("server", "TCP", &a.ServerQ4SPorts.TCP),
		q4sFlow("server", "UDP", &a.ServerQ4SPorts.UDP),
	}
}

func parseNonZero(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func setNonZero(m *measure.Metric, s string) {
	if v, ok := parseNonZero(s); ok {
		*m = measure.Some(v)
	}
}

func setPair(up, down *measure.Metric, value string) {
	u, d, _ := strings.Cut(value, "/")
	setNonZero(up, u)
	setNonZero(down, d)
}
