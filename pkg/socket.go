package protocol

import (
	"net"
	"net/netip"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

var ErrNoPeer = errors.New("no peer address yet")

// UDPChannel is a Channel over a UDP socket bound to a single peer. A
// listening channel adopts the first address it hears from; datagrams from
// any other address are dropped.
type UDPChannel struct {
	conn *net.UDPConn

	mu   sync.Mutex
	peer netip.AddrPort
}

// DialUDP opens an ephemeral local socket addressed to host:port.
func DialUDP(host string, port uint16) (*UDPChannel, error) {
	remote, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", host)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, errors.Wrap(err, "open socket")
	}
	peer := remote.AddrPort()
	peer = netip.AddrPortFrom(peer.Addr().Unmap(), peer.Port())
	log.Infow("sending", "local", conn.LocalAddr(), "peer", peer)
	return &UDPChannel{conn: conn, peer: peer}, nil
}

// ListenUDP binds port on every interface and waits for a peer.
func ListenUDP(port uint16) (*UDPChannel, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, errors.Wrapf(err, "bind port %d", port)
	}
	log.Infow("listening", "local", conn.LocalAddr())
	return &UDPChannel{conn: conn}, nil
}

func (c *UDPChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *UDPChannel) Peer() netip.AddrPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *UDPChannel) Send(b []byte) error {
	peer := c.Peer()
	if !peer.IsValid() {
		return ErrNoPeer
	}
	_, err := c.conn.WriteToUDPAddrPort(b, peer)
	return err
}

func (c *UDPChannel) Receive(buf []byte) (int, error) {
	for {
		n, from, err := c.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return 0, err
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		c.mu.Lock()
		if !c.peer.IsValid() {
			c.peer = from
			log.Infow("peer connected", "peer", from)
		}
		peer := c.peer
		c.mu.Unlock()

		if from != peer {
			log.Debugw("dropping datagram from unknown peer", "from", from, "peer", peer)
			continue
		}
		return n, nil
	}
}

func (c *UDPChannel) Close() error {
	return c.conn.Close()
}
