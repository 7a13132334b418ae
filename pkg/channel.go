package protocol

import (
	"context"

	"github.com/pkg/errors"
)

const (
	// MaxDatagramSize bounds a single receive.
	MaxDatagramSize = 0xffff

	// largest UDP payload over IPv4: 65535 minus the IP and UDP headers
	maxUDPPayload = MaxDatagramSize - 20 - 8
)

// Channel is an unreliable datagram transport. Each Send and Receive moves
// exactly one datagram; Receive blocks until one arrives or the channel is
// closed.
type Channel interface {
	Send(b []byte) error
	Receive(buf []byte) (int, error)
	Close() error
}

// inbound is one decoded arrival, or the error that ended the reader.
type inbound struct {
	seg Segment
	err error
}

// readSegments runs the blocking receive side of ch in its own goroutine and
// posts decoded segments to the returned channel, which the driver services
// one at a time alongside its timers. Malformed datagrams are dropped here.
// The goroutine exits when Receive fails, typically after ch is closed.
func readSegments(ctx context.Context, ch Channel, maxPayload int, m *Metrics) <-chan inbound {
	out := make(chan inbound, 16)
	go func() {
		buf := make([]byte, MaxDatagramSize)
		for {
			n, err := ch.Receive(buf)
			if err != nil {
				select {
				case out <- inbound{err: errors.Wrap(err, "receive")}:
				case <-ctx.Done():
				}
				return
			}

			seg, err := Decode(buf[:n], maxPayload)
			if err != nil {
				log.Debugw("dropping datagram", "err", err)
				m.MalformedDropped.Inc()
				continue
			}

			select {
			case out <- inbound{seg: seg}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func sendSegment(ch Channel, seg Segment) error {
	return errors.Wrapf(ch.Send(Encode(seg)), "send %s", seg)
}
