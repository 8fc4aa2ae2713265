// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/message"
)

// StreamSwitch exchanges message.Messages from an io.Reader and io.Writer to channels. A malformed message is answered
// with 400 Bad Request and skipped. If one of the io.Reader or the io.Writer is closeable, closing should be performed
// after the StreamSwitch has finished.
type StreamSwitch struct {
	in  io.Reader
	out io.Writer

	inChan  chan Inbound
	outChan chan message.Message
	errChan chan error

	stopChan chan struct{}
	stopOnce sync.Once

	// finished is accessed by sync.atomic functions; zero means running, everything else indicates a finished state
	finished uint32
}

// NewStreamSwitch for an io.Reader and io.Writer to exchange message.Messages to channels.
func NewStreamSwitch(in io.Reader, out io.Writer) (ms *StreamSwitch) {
	ms = &StreamSwitch{
		in:  in,
		out: out,

		inChan:  make(chan Inbound, 32),
		outChan: make(chan message.Message, 32),
		errChan: make(chan error, 1),

		stopChan: make(chan struct{}),
	}

	go ms.handleIn()
	go ms.handleOut()

	return
}

func (ms *StreamSwitch) sendErr(err error) {
	if atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
		ms.errChan <- err
	}
}

func (ms *StreamSwitch) handleIn() {
	in := bufio.NewReader(ms.in)

	for {
		if atomic.LoadUint32(&ms.finished) != 0 {
			return
		}

		msg, err := message.ReadMessage(in)
		at := time.Now()

		switch {
		case errors.Is(err, message.ErrMalformed):
			log.WithError(err).Debug("StreamSwitch answers a malformed message")

			select {
			case ms.outChan <- message.NewResponse(message.StatusBadRequest):
			case <-ms.stopChan:
				return
			}

		case err != nil:
			ms.sendErr(err)
			return

		default:
			select {
			case ms.inChan <- Inbound{Msg: msg, At: at}:
			case <-ms.stopChan:
				return
			}
		}
	}
}

func (ms *StreamSwitch) handleOut() {
	out := bufio.NewWriter(ms.out)

	for {
		select {
		case <-ms.stopChan:
			return

		case msg := <-ms.outChan:
			if err := msg.Marshal(out); err != nil {
				ms.sendErr(err)
				return
			}
			if err := out.Flush(); err != nil {
				ms.sendErr(err)
				return
			}
		}
	}
}

// Close the StreamSwitch. An error might be returned if the internal state is already finished.
func (ms *StreamSwitch) Close() (err error) {
	ms.stopOnce.Do(func() {
		close(ms.stopChan)
	})

	if !atomic.CompareAndSwapUint32(&ms.finished, 0, 1) {
		err = errors.New("StreamSwitch has already finished")
	}

	return
}

// Exchange channels to be serialized.
func (ms *StreamSwitch) Exchange() (incoming <-chan Inbound, outgoing chan<- message.Message, errChan <-chan error) {
	incoming = ms.inChan
	outgoing = ms.outChan
	errChan = ms.errChan
	return
}
