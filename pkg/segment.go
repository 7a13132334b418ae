package protocol

import (
	"encoding/binary"
	"fmt"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

const (
	// HeaderSize is payload_length(2) + sequence_offset(4) + ack_offset(4) + flags(1)
	HeaderSize = 11

	DefaultMaxPayload = 1460 // fits one 1500 byte MTU with IP/UDP headers

	// MaxPayloadLimit is the largest payload whose segment still fits in one
	// UDP datagram, leaving room for the virtual IPv4 header.
	MaxPayloadLimit = maxUDPPayload - ipv4header.HeaderLen - HeaderSize
)

// Control is the role of a segment on the wire. The bits reuse the TCP flag
// values so a capture reads naturally.
type Control uint8

const (
	ControlData Control = header.TCPFlagPsh
	ControlAck  Control = header.TCPFlagAck
)

func (c Control) String() string {
	switch c {
	case ControlData:
		return "DATA"
	case ControlAck:
		return "ACK"
	}
	return fmt.Sprintf("Control(%#x)", uint8(c))
}

var ErrMalformedSegment = errors.New("malformed segment")

type Segment struct {
	SequenceOffset uint32
	AckOffset      uint32
	Control        Control
	Payload        []byte
}

// NewDataSegment builds a DATA segment at offset. An empty payload makes the
// terminal end-of-stream segment.
func NewDataSegment(offset uint32, payload []byte) Segment {
	return Segment{
		SequenceOffset: offset,
		AckOffset:      offset + uint32(len(payload)),
		Control:        ControlData,
		Payload:        payload,
	}
}

func NewAckSegment(ackOffset uint32) Segment {
	return Segment{AckOffset: ackOffset, Control: ControlAck}
}

func (s Segment) IsTerminal() bool {
	return s.Control == ControlData && len(s.Payload) == 0
}

// End is the offset one past the last unit this segment occupies. The
// terminal segment occupies a single unit so that acknowledging it is
// distinguishable from acknowledging the last data byte.
func (s Segment) End() uint32 {
	if s.IsTerminal() {
		return s.SequenceOffset + 1
	}
	return s.SequenceOffset + uint32(len(s.Payload))
}

func (s Segment) String() string {
	return fmt.Sprintf("[%s seq:%d ack:%d len:%d]", s.Control, s.SequenceOffset, s.AckOffset, len(s.Payload))
}

// Encode writes the fixed header followed by the payload.
func Encode(s Segment) []byte {
	buf := make([]byte, HeaderSize+len(s.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(s.Payload)))
	binary.BigEndian.PutUint32(buf[2:6], s.SequenceOffset)
	binary.BigEndian.PutUint32(buf[6:10], s.AckOffset)
	buf[10] = uint8(s.Control)
	copy(buf[HeaderSize:], s.Payload)
	return buf
}

// Decode parses one datagram. Bytes past the declared payload are ignored.
// The returned payload is a copy, so the caller may reuse b.
func Decode(b []byte, maxPayload int) (Segment, error) {
	if len(b) < HeaderSize {
		return Segment{}, errors.Wrapf(ErrMalformedSegment, "short datagram of %d bytes", len(b))
	}
	payloadLen := int(binary.BigEndian.Uint16(b[0:2]))
	if payloadLen > maxPayload {
		return Segment{}, errors.Wrapf(ErrMalformedSegment, "payload length %d exceeds maximum %d", payloadLen, maxPayload)
	}
	if payloadLen > len(b)-HeaderSize {
		return Segment{}, errors.Wrapf(ErrMalformedSegment, "payload length %d exceeds datagram", payloadLen)
	}

	control := Control(b[10])
	if control != ControlData && control != ControlAck {
		return Segment{}, errors.Wrapf(ErrMalformedSegment, "unknown control flags %#x", b[10])
	}

	seg := Segment{
		SequenceOffset: binary.BigEndian.Uint32(b[2:6]),
		AckOffset:      binary.BigEndian.Uint32(b[6:10]),
		Control:        control,
	}
	if payloadLen > 0 {
		seg.Payload = make([]byte, payloadLen)
		copy(seg.Payload, b[HeaderSize:HeaderSize+payloadLen])
	}
	return seg, nil
}
