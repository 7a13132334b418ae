package protocol

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

const (
	ProtocolRDT = 201 // IP protocol number carried by encapsulated segments
	defaultTTL  = 16
)

// IPv4Link wraps every datagram of an inner channel in a virtual IPv4 header,
// the way a virtual host rides its IP layer over a UDP link. Arrivals with a
// bad checksum, another protocol, or another address pair are dropped.
type IPv4Link struct {
	inner   Channel
	local   netip.Addr
	remote  netip.Addr
	scratch []byte
}

func NewIPv4Link(inner Channel, local, remote netip.Addr) (*IPv4Link, error) {
	if !local.Is4() || !remote.Is4() {
		return nil, errors.Errorf("virtual addresses must be IPv4, got %s and %s", formatAddr(local), formatAddr(remote))
	}
	return &IPv4Link{
		inner:   inner,
		local:   local,
		remote:  remote,
		scratch: make([]byte, MaxDatagramSize),
	}, nil
}

func (l *IPv4Link) Send(data []byte) error {
	hdr := ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen, // no options
		TOS:      0,
		TotalLen: ipv4header.HeaderLen + len(data),
		ID:       0,
		Flags:    0,
		FragOff:  0,
		TTL:      defaultTTL,
		Protocol: ProtocolRDT,
		Checksum: 0, // zero until computed over the marshaled header
		Src:      l.local,
		Dst:      l.remote,
		Options:  []byte{},
	}
	headerBytes, err := hdr.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal ip header")
	}
	hdr.Checksum = int(ComputeChecksum(headerBytes))
	headerBytes, err = hdr.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal ip header")
	}

	packet := make([]byte, 0, len(headerBytes)+len(data))
	packet = append(packet, headerBytes...)
	packet = append(packet, data...)
	return l.inner.Send(packet)
}

func (l *IPv4Link) Receive(buf []byte) (int, error) {
	for {
		n, err := l.inner.Receive(l.scratch)
		if err != nil {
			return 0, err
		}
		payload, err := l.unwrap(l.scratch[:n])
		if err != nil {
			log.Debugw("dropping ip packet", "err", err)
			continue
		}
		return copy(buf, payload), nil
	}
}

func (l *IPv4Link) unwrap(packet []byte) ([]byte, error) {
	hdr, err := ipv4header.ParseHeader(packet)
	if err != nil {
		return nil, errors.Wrap(err, "parse ip header")
	}
	if hdr.Len < ipv4header.HeaderLen || hdr.Len > len(packet) || hdr.TotalLen < hdr.Len || hdr.TotalLen > len(packet) {
		return nil, errors.Errorf("bad lengths header=%d total=%d packet=%d", hdr.Len, hdr.TotalLen, len(packet))
	}

	headerBytes := make([]byte, hdr.Len)
	copy(headerBytes, packet[:hdr.Len])
	headerBytes[10], headerBytes[11] = 0, 0
	if computed := ComputeChecksum(headerBytes); computed != uint16(hdr.Checksum) {
		return nil, errors.Errorf("checksum %#04x, computed %#04x", hdr.Checksum, computed)
	}

	switch {
	case hdr.Protocol != ProtocolRDT:
		return nil, errors.Errorf("protocol %d", hdr.Protocol)
	case hdr.Src != l.remote || hdr.Dst != l.local:
		return nil, errors.Errorf("unexpected route %s -> %s", formatAddr(hdr.Src), formatAddr(hdr.Dst))
	}
	return packet[hdr.Len:hdr.TotalLen], nil
}

func (l *IPv4Link) Close() error {
	return l.inner.Close()
}

// ComputeChecksum is the IPv4 header checksum of headerBytes, whose checksum
// field must be zero.
func ComputeChecksum(headerBytes []byte) uint16 {
	checksum := header.Checksum(headerBytes, 0)
	return checksum ^ 0xffff
}
