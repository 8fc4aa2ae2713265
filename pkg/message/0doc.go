// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package message implements the Q4S wire format: Requests and Responses in
// a text based, HTTP like encoding.
//
//	PING q4s://www.example.com Q4S/1.0
//	Session-Id: 6d5b1f0e-3c57-4e0b-a6f4-2c8a3a4d59f1
//	Sequence-Number: 12
//	Measurements: l=20, j=1, pl=0, bw=
//
// Incoming data is classified with IsRequest and decoded by Parse, which also
// validates the message. A validation failure is reported as a MalformedError,
// listing every violated rule. Messages on a stream are read by ReadMessage,
// which frames the body by its Content-Length header.
package message
