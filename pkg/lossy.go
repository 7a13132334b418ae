package protocol

import (
	"sync"
	"sync/atomic"
)

// LossyChannel drops every dropEvery-th and duplicates every dupEvery-th
// outgoing datagram of the wrapped channel. Zero disables either behavior.
type LossyChannel struct {
	Channel
	dropEvery int64
	dupEvery  int64
	sent      atomic.Int64
}

func NewLossyChannel(inner Channel, dropEvery, dupEvery int) *LossyChannel {
	return &LossyChannel{
		Channel:   inner,
		dropEvery: int64(dropEvery),
		dupEvery:  int64(dupEvery),
	}
}

func (c *LossyChannel) Send(b []byte) error {
	n := c.sent.Add(1)
	if c.dropEvery > 0 && n%c.dropEvery == 0 {
		log.Debugw("emulated loss", "datagram", n)
		return nil
	}
	if err := c.Channel.Send(b); err != nil {
		return err
	}
	if c.dupEvery > 0 && n%c.dupEvery == 0 {
		log.Debugw("emulated duplicate", "datagram", n)
		return c.Channel.Send(b)
	}
	return nil
}

// ReorderChannel holds back every every-th outgoing datagram and releases it
// right after the next one, so the peer sees the pair swapped. A held
// datagram is discarded on Close.
type ReorderChannel struct {
	Channel
	every int64

	mu   sync.Mutex
	sent int64
	held []byte
}

func NewReorderChannel(inner Channel, every int) *ReorderChannel {
	return &ReorderChannel{Channel: inner, every: int64(every)}
}

func (c *ReorderChannel) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent++
	if c.held == nil && c.every > 0 && c.sent%c.every == 0 {
		log.Debugw("emulated reorder", "datagram", c.sent)
		c.held = append([]byte(nil), b...)
		return nil
	}
	if err := c.Channel.Send(b); err != nil {
		return err
	}
	if held := c.held; held != nil {
		c.held = nil
		return c.Channel.Send(held)
	}
	return nil
}
