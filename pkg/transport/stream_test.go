// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/q4s/q4s-go/pkg/message"
)

func TestStreamSwitchSimple(t *testing.T) {
	const pingSends = 1000

	in, out := io.Pipe()
	ms := NewStreamSwitch(in, out)
	incoming, outgoing, errChan := ms.Exchange()

	go func() {
		for i := 0; i < pingSends; i++ {
			req := message.NewRequest(message.Ping, "q4s://localhost")
			req.Headers.SetSequenceNumber(uint64(i))
			outgoing <- req
		}
	}()

	for i := 0; i < pingSends; i++ {
		select {
		case err := <-errChan:
			t.Fatal(err)

		case in := <-incoming:
			req, ok := in.Msg.(*message.Request)
			if !ok {
				t.Fatalf("msg is %T", in.Msg)
			}
			if seq, _ := req.Headers.SequenceNumber(); seq != uint64(i) {
				t.Fatalf("expected sequence number %d, got %d", i, seq)
			}
			if in.At.IsZero() {
				t.Fatal("arrival time is unset")
			}

		case <-time.After(250 * time.Millisecond):
			t.Fatal("timeout")
		}
	}

	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStreamSwitchMalformed(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	ms := NewStreamSwitch(local, local)
	defer ms.Close()
	incoming, _, errChan := ms.Exchange()

	go func() {
		_, _ = remote.Write([]byte("FOO q4s://localhost Q4S/1.0\r\n\r\n" +
			"READY q4s://localhost Q4S/1.0\r\nStage: 2\r\n\r\n"))
	}()

	resp, err := message.ReadMessage(bufio.NewReader(remote))
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := resp.(*message.Response); !ok || r.StatusCode != message.StatusBadRequest {
		t.Fatalf("expected 400 response, got %v", resp)
	}

	select {
	case err := <-errChan:
		t.Fatal(err)

	case in := <-incoming:
		if stage, _ := in.Msg.Header().Stage(); stage != 2 {
			t.Fatalf("expected the READY after the malformed message, got %v", in.Msg)
		}

	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestStreamSwitchError(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()

	ms := NewStreamSwitch(local, local)
	_, _, errChan := ms.Exchange()

	_ = remote.Close()

	select {
	case err := <-errChan:
		if err == nil {
			t.Fatal("expected an error")
		}

	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	if err := ms.Close(); err == nil {
		t.Fatal("closing a finished StreamSwitch did not fail")
	}
}
