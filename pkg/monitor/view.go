// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"time"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/session"
)

// sessionView is the JSON representation of a Session.
type sessionView struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	State   string    `json:"state"`

	ClientAddress string `json:"client_address,omitempty"`
	ServerAddress string `json:"server_address,omitempty"`

	Quality  measure.MeasurementSet `json:"quality"`
	Measured measure.MeasurementSet `json:"measured"`

	QosLevelUp   int    `json:"qos_level_up"`
	QosLevelDown int    `json:"qos_level_down"`
	AlertingMode string `json:"alerting_mode"`
}

func newSessionView(s *session.Session) sessionView {
	return sessionView{
		ID:            s.ID,
		Created:       s.Created,
		State:         s.State,
		ClientAddress: s.Addresses.ClientAddress,
		ServerAddress: s.Addresses.ServerAddress,
		Quality:       s.Quality,
		Measured:      s.Measured,
		QosLevelUp:    s.Alert.QosLevelUp,
		QosLevelDown:  s.Alert.QosLevelDown,
		AlertingMode:  s.Alert.Mode.String(),
	}
}
