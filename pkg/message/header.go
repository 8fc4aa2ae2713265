// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"strconv"
	"strings"
)

// Well-known header names.
const (
	HeaderStage            = "Stage"
	HeaderSessionID        = "Session-Id"
	HeaderSequenceNumber   = "Sequence-Number"
	HeaderMeasurements     = "Measurements"
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderContentEncoding  = "Content-Encoding"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderTriggerURI       = "Trigger-URI"
	HeaderSignature        = "signature"
)

// ContentTypeSDP is the Content-Type of a session descriptor body.
const ContentTypeSDP = "application/sdp"

type field struct {
	name  string
	value string
}

// Header of a Message. Fields keep their insertion order, which is also their
// serialization order. Names are compared case-insensitively.
type Header struct {
	fields []field
}

func (h *Header) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return i
		}
	}
	return -1
}

// Get a header's value and whether it is present.
func (h *Header) Get(name string) (value string, ok bool) {
	if i := h.index(name); i >= 0 {
		return h.fields[i].value, true
	}
	return "", false
}

// Has checks if a header is present.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Set a header's value. An existing header keeps its position, a new one is appended.
func (h *Header) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i].value = value
	} else {
		h.fields = append(h.fields, field{name: name, value: value})
	}
}

// Del removes a header, if present.
func (h *Header) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Len is the number of header fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// Each calls f for every header in order.
func (h *Header) Each(f func(name, value string)) {
	for _, hf := range h.fields {
		f(hf.name, hf.value)
	}
}

// Clone returns an independent copy.
func (h *Header) Clone() Header {
	return Header{fields: append([]field(nil), h.fields...)}
}

func (h *Header) uint(name string) (uint64, bool) {
	v, ok := h.Get(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	return n, err == nil
}

// Stage header, the negotiation stage of a READY.
func (h *Header) Stage() (stage int, ok bool) {
	n, ok := h.uint(HeaderStage)
	return int(n), ok
}

// SetStage header.
func (h *Header) SetStage(stage int) {
	h.Set(HeaderStage, strconv.Itoa(stage))
}

// SessionID header or an empty string.
func (h *Header) SessionID() string {
	v, _ := h.Get(HeaderSessionID)
	return strings.TrimSpace(v)
}

// SetSessionID header.
func (h *Header) SetSessionID(id string) {
	h.Set(HeaderSessionID, id)
}

// SequenceNumber header of probes and their responses.
func (h *Header) SequenceNumber() (seq uint64, ok bool) {
	return h.uint(HeaderSequenceNumber)
}

// SetSequenceNumber header.
func (h *Header) SetSequenceNumber(seq uint64) {
	h.Set(HeaderSequenceNumber, strconv.FormatUint(seq, 10))
}

// Measurements header, encoded by the measure package.
func (h *Header) Measurements() string {
	v, _ := h.Get(HeaderMeasurements)
	return v
}

// SetMeasurements header.
func (h *Header) SetMeasurements(m string) {
	h.Set(HeaderMeasurements, m)
}

// ContentType header or an empty string.
func (h *Header) ContentType() string {
	v, _ := h.Get(HeaderContentType)
	return strings.TrimSpace(v)
}

// ContentLength header.
func (h *Header) ContentLength() (length int, ok bool) {
	n, ok := h.uint(HeaderContentLength)
	return int(n), ok
}

// TriggerURI header, the handoff URI after a successful negotiation.
func (h *Header) TriggerURI() string {
	v, _ := h.Get(HeaderTriggerURI)
	return strings.TrimSpace(v)
}

// SetTriggerURI header.
func (h *Header) SetTriggerURI(uri string) {
	h.Set(HeaderTriggerURI, uri)
}
