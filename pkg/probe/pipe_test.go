// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"sync"
	"testing"
	"time"

	"github.com/q4s/q4s-go/pkg/message"
)

// pipe is a Sender delivering each probe in its wire format to a peer Engine
// after a fixed delay.
type pipe struct {
	t     *testing.T
	delay time.Duration
	drop  func(msg message.Message) bool

	mu   sync.Mutex
	peer Engine
	sent int
}

func newPipe(t *testing.T, delay time.Duration) *pipe {
	return &pipe{t: t, delay: delay}
}

func (p *pipe) connect(peer Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peer = peer
}

func (p *pipe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *pipe) SendProbe(msg message.Message) error {
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()

	if p.drop != nil && p.drop(msg) {
		return nil
	}

	data := message.Bytes(msg)
	time.AfterFunc(p.delay, func() {
		parsed, err := message.Parse(data)
		if err != nil {
			p.t.Errorf("probe does not parse: %v", err)
			return
		}

		p.mu.Lock()
		peer := p.peer
		p.mu.Unlock()

		if peer != nil {
			peer.Deliver(parsed, time.Now())
		}
	})
	return nil
}

// echo is a Sender answering each PING itself, unless drop reports true.
type echo struct {
	pipe
}

func newEcho(t *testing.T, delay time.Duration) *echo {
	return &echo{pipe: pipe{t: t, delay: delay}}
}

func (e *echo) SendProbe(msg message.Message) error {
	req, ok := isPing(msg)
	if !ok {
		return nil
	}
	if e.drop != nil && e.drop(msg) {
		return nil
	}

	reply := req.Reply(message.StatusOK)
	time.AfterFunc(e.delay, func() {
		e.mu.Lock()
		peer := e.peer
		e.mu.Unlock()

		if peer != nil {
			peer.Deliver(reply, time.Now())
		}
	})
	return nil
}

func seqOf(msg message.Message) uint64 {
	seq, _ := msg.Header().SequenceNumber()
	return seq
}

func waitEngine(t *testing.T, e Engine, timeout time.Duration) (Result, error) {
	select {
	case <-e.Done():
		return e.Wait()
	case <-time.After(timeout):
		t.Fatalf("engine did not finish within %v", timeout)
		return Result{}, nil
	}
}
