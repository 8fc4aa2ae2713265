// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"io"
	"net"
	"time"

	"github.com/q4s/q4s-go/pkg/message"
)

// Inbound is a received message, stamped with its arrival time.
type Inbound struct {
	Msg message.Message
	At  time.Time

	// Addr is the sender's address for datagrams, nil for streams.
	Addr net.Addr
}

// MessageSwitch is the interface for an exchange between message.Messages from channels and an underlying layer.
type MessageSwitch interface {
	io.Closer

	// Exchange channels to be serialized.
	//
	// 	* incoming is a "receive only" channel for incoming Messages.
	//	* outgoing is a "send only" channel for outgoing Messages.
	//	* errChan is another "receive only" channel to propagate errors. Only one error will be sent.
	Exchange() (incoming <-chan Inbound, outgoing chan<- message.Message, errChan <-chan error)
}
