// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsRequest(t *testing.T) {
	tests := []struct {
		data    string
		request bool
	}{
		{"PING q4s://example.com Q4S/1.0\r\n\r\n", true},
		{"Q4S/1.0 200 OK\r\n\r\n", false},
		{"Q4S/1.0 600 Session Does Not Exist\r\n\r\n", false},
		{"READY q4s://example.com Q4S/1.0\r\nStage: 0\r\n\r\n", true},
		{"GARBAGE", true},
		{"", true},
	}

	for _, test := range tests {
		if got := IsRequest([]byte(test.data)); got != test.request {
			t.Fatalf("IsRequest(%q) = %t, expected %t", test.data, got, test.request)
		}
	}
}

func TestParseRequest(t *testing.T) {
	data := "READY q4s://www.example.com Q4S/1.0\r\n" +
		"Stage: 1\r\n" +
		"Session-Id: 42\r\n" +
		"Content-Type: application/sdp\r\n" +
		"\r\n" +
		"v=0\r\n"

	msg, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}

	req, ok := msg.(*Request)
	if !ok {
		t.Fatalf("expected *Request, got %T", msg)
	}

	if req.Method != Ready || req.URI != "q4s://www.example.com" || req.Version != Version {
		t.Fatalf("start line mismatch: %v", req)
	}
	if stage, ok := req.Headers.Stage(); !ok || stage != 1 {
		t.Fatalf("Stage header is %d, %t", stage, ok)
	}
	if id := req.Headers.SessionID(); id != "42" {
		t.Fatalf("Session-Id is %q", id)
	}
	if body := string(req.Body()); body != "v=0\r\n" {
		t.Fatalf("body is %q", body)
	}
}

func TestParseResponse(t *testing.T) {
	msg, err := Parse([]byte("Q4S/1.0 600 Session Does Not Exist\r\nSequence-Number: 7\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}

	resp, ok := msg.(*Response)
	if !ok {
		t.Fatalf("expected *Response, got %T", msg)
	}
	if resp.StatusCode != StatusSessionDoesNotExist || resp.ReasonPhrase != "Session Does Not Exist" {
		t.Fatalf("status line mismatch: %v", resp)
	}
	if seq, ok := resp.Headers.SequenceNumber(); !ok || seq != 7 {
		t.Fatalf("Sequence-Number is %d, %t", seq, ok)
	}
	if resp.IsOK() {
		t.Fatal("600 must not be OK")
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
		rule error
	}{
		{"no version", "PING q4s://example.com\r\n\r\n", ErrMissingVersion},
		{"unknown method", "GET / Q4S/1.0\r\n\r\n", ErrUnknownMethod},
		{"ready without stage", "READY q4s://example.com Q4S/1.0\r\n\r\n", ErrMissingStage},
		{"bad signature", "PING q4s://example.com Q4S/1.0\r\nContent-Type: text/plain\r\nsignature: 00\r\n\r\nhello", ErrSignature},
		{"compressed", "PING q4s://example.com Q4S/1.0\r\nContent-Encoding: gzip\r\n\r\n", ErrContentEncoding},
		{"body without type", "PING q4s://example.com Q4S/1.0\r\n\r\nhello", ErrMissingContentType},
		{"chunked", "PING q4s://example.com Q4S/1.0\r\nTransfer-Encoding: chunked\r\n\r\n", ErrTransferEncoding},
		{"header without colon", "PING q4s://example.com Q4S/1.0\r\nbroken\r\n\r\n", ErrHeaderLine},
		{"response without version", " 200 OK\r\n\r\n", ErrMissingVersion},
		{"empty", "", ErrEmptyMessage},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg, err := Parse([]byte(test.data))
			if err == nil {
				t.Fatalf("expected an error, got %v", msg)
			}
			if msg != nil {
				t.Fatalf("no Message expected next to an error, got %v", msg)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("error %v is not ErrMalformed", err)
			}
			if !errors.Is(err, test.rule) {
				t.Fatalf("error %v does not name %v", err, test.rule)
			}
		})
	}
}

func TestParseMalformedListsAllRules(t *testing.T) {
	_, err := ParseRequest([]byte("READY q4s://example.com\r\nContent-Encoding: xz\r\n\r\n"))
	for _, rule := range []error{ErrMissingVersion, ErrMissingStage, ErrContentEncoding} {
		if !errors.Is(err, rule) {
			t.Fatalf("error %v does not name %v", err, rule)
		}
	}
}

func TestSignBody(t *testing.T) {
	req := NewRequest(Ping, "q4s://example.com")
	req.SetBody("text/plain", []byte("hello"))
	req.SignBody()

	if sig, _ := req.Headers.Get(HeaderSignature); sig != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("signature is %q", sig)
	}

	if _, err := Parse(Bytes(req)); err != nil {
		t.Fatalf("signed message does not parse: %v", err)
	}
}

func TestMarshalHeaderOrder(t *testing.T) {
	req := NewRequest(Ping, "q4s://example.com")
	req.Headers.SetSessionID("1")
	req.Headers.SetSequenceNumber(3)
	req.Headers.SetMeasurements("l=20, j=1, pl=0, bw=")
	req.Headers.SetSessionID("2")

	expected := "PING q4s://example.com Q4S/1.0\r\n" +
		"Session-Id: 2\r\n" +
		"Sequence-Number: 3\r\n" +
		"Measurements: l=20, j=1, pl=0, bw=\r\n" +
		"\r\n"

	if diff := cmp.Diff(expected, string(Bytes(req))); diff != "" {
		t.Fatalf("serialization mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestWithoutURI(t *testing.T) {
	for _, req := range []*Request{
		NewRequest(Bwidth, ""),
		{Method: Ping, Version: Version},
	} {
		req.Headers.SetSequenceNumber(7)

		msg, err := Parse(Bytes(req))
		if err != nil {
			t.Fatalf("%q does not parse: %v", Bytes(req), err)
		}

		parsed := msg.(*Request)
		if parsed.Method != req.Method || parsed.URI != DefaultURI || parsed.Version != Version {
			t.Fatalf("start line mismatch: %v", parsed)
		}
		if seq, ok := parsed.Headers.SequenceNumber(); !ok || seq != 7 {
			t.Fatalf("Sequence-Number is %d, %t", seq, ok)
		}
	}
}

func TestReply(t *testing.T) {
	req := NewRequest(Ping, "q4s://example.com")
	req.Headers.SetSessionID("abc")
	req.Headers.SetSequenceNumber(9)
	req.Headers.SetMeasurements("l=1, j=, pl=, bw=")

	resp := req.Reply(StatusOK)
	if diff := cmp.Diff("Q4S/1.0 200 OK\r\nSession-Id: abc\r\nSequence-Number: 9\r\n\r\n", string(Bytes(resp))); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMessage(t *testing.T) {
	ready := NewRequest(Ready, "q4s://example.com")
	ready.Headers.SetStage(0)
	ready.SetBody(ContentTypeSDP, []byte("o=q4s 1 0 IN IP4 127.0.0.1\r\n\r\nnot a header\r\n"))

	ok := NewResponse(StatusOK)
	ok.Headers.SetStage(0)

	var stream bytes.Buffer
	stream.Write(Bytes(ready))
	stream.WriteString("\r\n")
	stream.WriteString("READY q4s://example.com Q4S/1.0\r\n\r\n")
	stream.Write(Bytes(ok))

	r := bufio.NewReader(&stream)

	msg, err := ReadMessage(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg.Body(), ready.Payload) {
		t.Fatalf("body mismatch: %q", msg.Body())
	}

	if _, err := ReadMessage(r); !errors.Is(err, ErrMissingStage) {
		t.Fatalf("expected a malformed READY, got %v", err)
	}

	msg, err = ReadMessage(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp, isResp := msg.(*Response); !isResp || !resp.IsOK() {
		t.Fatalf("expected 200 Response, got %v", msg)
	}

	if _, err := ReadMessage(r); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	data := "PING q4s://example.com Q4S/1.0\r\nContent-Type: text/plain\r\nContent-Length: 100\r\n\r\nshort"
	if _, err := ReadMessage(bufio.NewReader(strings.NewReader(data))); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}
