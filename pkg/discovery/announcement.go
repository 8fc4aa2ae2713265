// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Announcement of a Q4S server's handshake endpoint.
type Announcement struct {
	// Name identifies the server, e.g., its host name.
	Name string

	// URI is the Request-URI clients should use.
	URI string

	// HandshakePort is the TCP port expecting BEGIN requests.
	HandshakePort uint
}

// UnmarshalAnnouncements creates a new array of Announcement based on a CBOR byte string.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	buff := bytes.NewBuffer(data)

	l, err := cboring.ReadArrayLength(buff)
	if err != nil {
		return nil, err
	}

	announcements = make([]Announcement, l)
	for i := range announcements {
		if err := cboring.Unmarshal(&announcements[i], buff); err != nil {
			return nil, fmt.Errorf("unmarshalling Announcement %d failed: %w", i, err)
		}
	}
	return
}

// MarshalAnnouncements into a CBOR byte string.
func MarshalAnnouncements(announcements []Announcement) ([]byte, error) {
	buff := new(bytes.Buffer)

	if err := cboring.WriteArrayLength(uint64(len(announcements)), buff); err != nil {
		return nil, err
	}

	for i := range announcements {
		announcement := announcements[i]
		if err := cboring.Marshal(&announcement, buff); err != nil {
			return nil, fmt.Errorf("marshalling Announcement %d (%v) failed: %w", i, announcement, err)
		}
	}
	return buff.Bytes(), nil
}

// MarshalCbor creates a CBOR representation for an Announcement.
func (announcement *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(announcement.Name, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(announcement.URI, w); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(announcement.HandshakePort), w)
}

// UnmarshalCbor creates an Announcement from its CBOR representation.
func (announcement *Announcement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 3 {
		return fmt.Errorf("wrong array length: %d instead of 3", l)
	}

	name, err := cboring.ReadTextString(r)
	if err != nil {
		return err
	}
	uri, err := cboring.ReadTextString(r)
	if err != nil {
		return err
	}

	n, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	} else if n == 0 || n > 65535 {
		return fmt.Errorf("invalid handshake port %d", n)
	}

	announcement.Name = name
	announcement.URI = uri
	announcement.HandshakePort = uint(n)
	return nil
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(%s,%s,%d)", announcement.Name, announcement.URI, announcement.HandshakePort)
}
