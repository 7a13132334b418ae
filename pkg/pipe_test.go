package protocol

import (
	"net"
	"sync"
)

// pipeEnd is one side of an in-memory datagram link. A full queue drops the
// datagram, like a congested router would.
type pipeEnd struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipe() (*pipeEnd, *pipeEnd) {
	ab := make(chan []byte, 1024)
	ba := make(chan []byte, 1024)
	a := &pipeEnd{in: ba, out: ab, closed: make(chan struct{})}
	b := &pipeEnd{in: ab, out: ba, closed: make(chan struct{})}
	return a, b
}

func (p *pipeEnd) Send(b []byte) error {
	select {
	case <-p.closed:
		return net.ErrClosed
	default:
	}
	cp := append([]byte(nil), b...)
	select {
	case p.out <- cp:
	default:
	}
	return nil
}

func (p *pipeEnd) Receive(buf []byte) (int, error) {
	select {
	case b := <-p.in:
		return copy(buf, b), nil
	case <-p.closed:
		return 0, net.ErrClosed
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// recordingChannel decodes and keeps everything sent through it.
type recordingChannel struct {
	mu     sync.Mutex
	sent   []Segment
	sendFn func([]byte) error
	closed bool
}

func (c *recordingChannel) Send(b []byte) error {
	if c.sendFn != nil {
		if err := c.sendFn(b); err != nil {
			return err
		}
	}
	seg, err := Decode(b, MaxDatagramSize)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, seg)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) Receive([]byte) (int, error) {
	return 0, net.ErrClosed
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func (c *recordingChannel) Sent() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Segment(nil), c.sent...)
}

// memSink is an in-memory Sink that remembers every positioned write.
type memSink struct {
	mu     sync.Mutex
	data   []byte
	writes [][2]int64 // offset, length
	closed bool
}

func (s *memSink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if end := off + int64(len(p)); end > int64(len(s.data)) {
		s.data = append(s.data, make([]byte, end-int64(len(s.data)))...)
	}
	copy(s.data[off:], p)
	s.writes = append(s.writes, [2]int64{off, int64(len(p))})
	return len(p), nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}
