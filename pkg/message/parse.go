// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

const (
	// maxHeadSize limits the start line and all headers of a streamed message.
	maxHeadSize = 64 * 1024

	// maxBodySize limits the body of a streamed message.
	maxBodySize = 1024 * 1024
)

// ErrMalformed is matched by every MalformedError, errors.Is(err, ErrMalformed).
var ErrMalformed = errors.New("malformed message")

// Validation rules, each might be part of a MalformedError.
var (
	ErrEmptyMessage         = errors.New("empty message")
	ErrStartLine            = errors.New("start line is incomplete")
	ErrHeaderLine           = errors.New("header line without colon")
	ErrMissingVersion       = errors.New("version is missing")
	ErrUnknownMethod        = errors.New("method is unknown")
	ErrStatusCode           = errors.New("status code is not an integer")
	ErrMissingStage         = errors.New("READY requires a Stage header")
	ErrSignature            = errors.New("signature does not match the body")
	ErrContentEncoding      = errors.New("Content-Encoding is not supported")
	ErrMissingContentType   = errors.New("body without Content-Type")
	ErrTransferEncoding     = errors.New("Transfer-Encoding must be identity")
	ErrInvalidContentLength = errors.New("Content-Length is not a number")
)

// MalformedError is returned for messages violating at least one validation rule.
type MalformedError struct {
	// Err lists all violated rules.
	Err error
}

func (me *MalformedError) Error() string {
	return fmt.Sprintf("malformed message: %v", me.Err)
}

// Unwrap to the violated rules, errors.Is(err, ErrMissingStage).
func (me *MalformedError) Unwrap() error {
	return me.Err
}

// Is ErrMalformed.
func (me *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(err error) error {
	if err == nil {
		return nil
	}
	return &MalformedError{Err: err}
}

// IsRequest classifies raw data. If the second token of the first line is an
// integer, the data is a Response. Otherwise, it is a Request.
func IsRequest(data []byte) bool {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	tokens := strings.Split(strings.TrimRight(string(line), "\r"), " ")
	if len(tokens) < 2 {
		return true
	}
	_, err := strconv.Atoi(tokens[1])
	return err != nil
}

// Parse and validate a Message, either a *Request or a *Response. On error,
// no Message is returned; use ParseRequest or ParseResponse to inspect the
// partially parsed content.
func Parse(data []byte) (Message, error) {
	if IsRequest(data) {
		req, err := ParseRequest(data)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := ParseResponse(data)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ParseRequest and validate its content.
func ParseRequest(data []byte) (*Request, error) {
	startLine, headers, body, errs := split(data)
	if errs != nil && startLine == "" {
		return nil, malformed(errs)
	}

	req := &Request{Headers: headers, Payload: body}

	tokens := strings.Fields(startLine)
	if len(tokens) < 2 {
		errs = multierror.Append(errs, ErrStartLine)
	}
	if len(tokens) > 0 {
		req.Method = Method(tokens[0])
	}
	if len(tokens) > 1 {
		req.URI = tokens[1]
	}
	if len(tokens) > 2 {
		req.Version = tokens[2]
	}

	if err := req.CheckValid(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return req, malformed(errs)
}

// ParseResponse and validate its content.
func ParseResponse(data []byte) (*Response, error) {
	startLine, headers, body, errs := split(data)
	if errs != nil && startLine == "" {
		return nil, malformed(errs)
	}

	resp := &Response{Headers: headers, Payload: body}

	tokens := strings.SplitN(startLine, " ", 3)
	if len(tokens) < 2 {
		errs = multierror.Append(errs, ErrStartLine)
	}
	resp.Version = tokens[0]
	if len(tokens) > 1 {
		if code, err := strconv.Atoi(tokens[1]); err != nil {
			errs = multierror.Append(errs, ErrStatusCode)
		} else {
			resp.StatusCode = code
		}
	}
	if len(tokens) > 2 {
		resp.ReasonPhrase = tokens[2]
	}

	if err := resp.CheckValid(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return resp, malformed(errs)
}

// split data into its start line, the headers and the body.
func split(data []byte) (startLine string, headers Header, body []byte, errs error) {
	head := data
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		head, body = data[:i], data[i+4:]
	} else if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		head, body = data[:i], data[i+2:]
	}
	if len(body) == 0 {
		body = nil
	}

	lines := strings.Split(string(head), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}

	startLine = lines[0]
	if startLine == "" {
		errs = multierror.Append(errs, ErrEmptyMessage)
		return
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrHeaderLine, line))
			continue
		}
		headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return
}

// checkCommon validates the rules shared by Requests and Responses.
func checkCommon(version string, h *Header, body []byte) (errs error) {
	if version == "" {
		errs = multierror.Append(errs, ErrMissingVersion)
	}

	if sig, ok := h.Get(HeaderSignature); ok && !strings.EqualFold(sig, signature(body)) {
		errs = multierror.Append(errs, ErrSignature)
	}

	if h.Has(HeaderContentEncoding) {
		errs = multierror.Append(errs, ErrContentEncoding)
	}

	if len(body) > 0 && h.ContentType() == "" {
		errs = multierror.Append(errs, ErrMissingContentType)
	}

	if te, ok := h.Get(HeaderTransferEncoding); ok && !strings.EqualFold(strings.TrimSpace(te), "identity") {
		errs = multierror.Append(errs, ErrTransferEncoding)
	}

	return
}

// CheckValid returns an error listing all violated rules or nil.
func (r *Request) CheckValid() (errs error) {
	if err := checkCommon(r.Version, &r.Headers, r.Payload); err != nil {
		errs = multierror.Append(errs, err)
	}

	if !r.Method.IsKnown() {
		errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrUnknownMethod, r.Method))
	}

	if r.Method == Ready {
		if _, ok := r.Headers.Stage(); !ok {
			errs = multierror.Append(errs, ErrMissingStage)
		}
	}

	return
}

// CheckValid returns an error listing all violated rules or nil.
func (r *Response) CheckValid() error {
	return checkCommon(r.Version, &r.Headers, r.Payload)
}

// ReadMessage reads the next Message from a stream. The body's length is
// taken from the Content-Length header; without it, the body is empty.
//
// A *MalformedError indicates a well delimited but invalid message; the
// reader is positioned after it and can be used further. Every other error
// leaves the stream in an undefined state.
func ReadMessage(r *bufio.Reader) (Message, error) {
	var head bytes.Buffer

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && head.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		// Skip blank lines between messages.
		if head.Len() == 0 && strings.TrimRight(line, "\r\n") == "" {
			continue
		}

		head.WriteString(line)
		if head.Len() > maxHeadSize {
			return nil, fmt.Errorf("message head exceeds %d bytes", maxHeadSize)
		}

		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	length, err := contentLength(head.Bytes())
	if err != nil {
		return nil, err
	} else if length > maxBodySize {
		return nil, fmt.Errorf("message body of %d bytes exceeds %d bytes", length, maxBodySize)
	}

	if length > 0 {
		if _, err := io.CopyN(&head, r, int64(length)); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	return Parse(head.Bytes())
}

func contentLength(head []byte) (int, error) {
	for _, line := range strings.Split(string(head), "\n") {
		name, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(name), HeaderContentLength) {
			continue
		}

		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 31)
		if err != nil {
			return 0, ErrInvalidContentLength
		}
		return int(n), nil
	}
	return 0, nil
}
