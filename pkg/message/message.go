// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// Message is either a Request or a Response.
type Message interface {
	fmt.Stringer

	// Header of this Message, modifiable in place.
	Header() *Header

	// Body of this Message, might be empty.
	Body() []byte

	// SetBody replaces the body and sets the Content-Type and Content-Length headers.
	SetBody(contentType string, body []byte)

	// SignBody sets the signature header to the hex MD5 digest of the body.
	SignBody()

	// Marshal this Message in its wire format into a writer.
	Marshal(w io.Writer) error
}

// Request of some Method.
type Request struct {
	Method  Method
	URI     string
	Version string
	Headers Header
	Payload []byte
}

// NewRequest for a Method towards an URI, DefaultURI if empty.
func NewRequest(method Method, uri string) *Request {
	if uri == "" {
		uri = DefaultURI
	}
	return &Request{
		Method:  method,
		URI:     uri,
		Version: Version,
	}
}

// Header of this Request.
func (r *Request) Header() *Header {
	return &r.Headers
}

// Body of this Request.
func (r *Request) Body() []byte {
	return r.Payload
}

// SetBody replaces the body and sets the Content-Type and Content-Length headers.
func (r *Request) SetBody(contentType string, body []byte) {
	r.Payload = body
	setBodyHeaders(&r.Headers, contentType, body)
}

// SignBody sets the signature header to the hex MD5 digest of the body.
func (r *Request) SignBody() {
	r.Headers.Set(HeaderSignature, signature(r.Payload))
}

// Marshal this Request in its wire format. An empty URI is written as DefaultURI.
func (r *Request) Marshal(w io.Writer) error {
	uri := r.URI
	if uri == "" {
		uri = DefaultURI
	}

	var buff bytes.Buffer
	fmt.Fprintf(&buff, "%s %s %s\r\n", r.Method, uri, r.Version)
	marshalTail(&buff, &r.Headers, r.Payload)

	_, err := w.Write(buff.Bytes())
	return err
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s %s", r.Method, r.URI, r.Version)
}

// Reply to this Request with a status code. The Session-Id, Sequence-Number
// and Stage headers are copied into the Response.
func (r *Request) Reply(code int) *Response {
	resp := NewResponse(code)
	for _, name := range []string{HeaderSessionID, HeaderSequenceNumber, HeaderStage} {
		if v, ok := r.Headers.Get(name); ok {
			resp.Headers.Set(name, v)
		}
	}
	return resp
}

// Response to a Request.
type Response struct {
	Version      string
	StatusCode   int
	ReasonPhrase string
	Headers      Header
	Payload      []byte
}

// NewResponse for a status code with the matching reason phrase.
func NewResponse(code int) *Response {
	return &Response{
		Version:      Version,
		StatusCode:   code,
		ReasonPhrase: ReasonPhrase(code),
	}
}

// Header of this Response.
func (r *Response) Header() *Header {
	return &r.Headers
}

// Body of this Response.
func (r *Response) Body() []byte {
	return r.Payload
}

// SetBody replaces the body and sets the Content-Type and Content-Length headers.
func (r *Response) SetBody(contentType string, body []byte) {
	r.Payload = body
	setBodyHeaders(&r.Headers, contentType, body)
}

// SignBody sets the signature header to the hex MD5 digest of the body.
func (r *Response) SignBody() {
	r.Headers.Set(HeaderSignature, signature(r.Payload))
}

// Marshal this Response in its wire format.
func (r *Response) Marshal(w io.Writer) error {
	var buff bytes.Buffer
	fmt.Fprintf(&buff, "%s %d %s\r\n", r.Version, r.StatusCode, r.ReasonPhrase)
	marshalTail(&buff, &r.Headers, r.Payload)

	_, err := w.Write(buff.Bytes())
	return err
}

func (r *Response) String() string {
	return fmt.Sprintf("%s %d %s", r.Version, r.StatusCode, r.ReasonPhrase)
}

// IsOK checks for a 200 status code.
func (r *Response) IsOK() bool {
	return r.StatusCode == StatusOK
}

// Bytes returns a Message's wire format.
func Bytes(msg Message) []byte {
	var buff bytes.Buffer
	// Writing into a bytes.Buffer cannot fail.
	_ = msg.Marshal(&buff)
	return buff.Bytes()
}

func marshalTail(buff *bytes.Buffer, h *Header, body []byte) {
	h.Each(func(name, value string) {
		fmt.Fprintf(buff, "%s: %s\r\n", name, value)
	})
	buff.WriteString("\r\n")
	buff.Write(body)
}

func setBodyHeaders(h *Header, contentType string, body []byte) {
	if len(body) == 0 {
		h.Del(HeaderContentType)
		h.Del(HeaderContentLength)
		return
	}

	h.Set(HeaderContentType, contentType)
	h.Set(HeaderContentLength, strconv.Itoa(len(body)))
}

func signature(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}
