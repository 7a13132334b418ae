package protocol

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var ErrPeerUnresponsive = errors.New("peer unresponsive")

// Sender streams src to the peer on ch. All of its state is owned by the
// goroutine calling Run.
type Sender struct {
	cfg     Config
	ch      Channel
	src     io.Reader
	clock   clock.Clock
	metrics *Metrics
	trace   *Trace

	timer  *RetransmitTimer
	window *SendWindow
	cc     *CongestionController

	nextOffset uint32
	lastAcked  uint32
	dupAcks    int
	retries    int // consecutive timeouts without progress
	eofQueued  bool
}

func NewSender(ch Channel, src io.Reader, cfg Config, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	timer := NewRetransmitTimer(o.clock, cfg.RetransmitTimeout)
	s := &Sender{
		cfg:     cfg,
		ch:      ch,
		src:     src,
		clock:   o.clock,
		metrics: o.metrics,
		trace:   o.trace,
		timer:   timer,
		window:  NewSendWindow(timer, o.clock),
		cc:      NewCongestionController(cfg.InitialSSThresh, cfg.MaxWindow),
	}
	s.updateGauges()
	return s, nil
}

// Done reports whether the terminal segment has been queued and everything,
// including it, has been acknowledged.
func (s *Sender) Done() bool {
	return s.eofQueued && s.window.Len() == 0
}

// Run sends until the peer acknowledges end of stream. It takes ownership of
// the channel and closes it before returning.
func (s *Sender) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		s.timer.Disarm()
		err = multierr.Combine(err,
			errors.Wrap(s.ch.Close(), "close channel"),
			errors.Wrap(s.trace.Flush(), "flush trace"))
	}()

	start := s.clock.Now()
	acks := readSegments(ctx, s.ch, s.cfg.MaxPayload, s.metrics)
	for {
		if err := s.fill(); err != nil {
			return err
		}
		s.trace.Record(s.clock.Now(), int64(s.cc.Window()))

		if s.Done() {
			log.Infow("transfer complete",
				"bytes", humanize.Bytes(uint64(s.nextOffset)),
				"elapsed", s.clock.Since(start))
			return nil
		}

		select {
		case in := <-acks:
			if in.err != nil {
				return in.err
			}
			if err := s.handleAck(in.seg); err != nil {
				return err
			}
		case <-s.timer.C():
			if err := s.handleTimeout(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fill admits new segments while the congestion window has room.
func (s *Sender) fill() error {
	for !s.eofQueued && s.window.Len() < s.cc.Window() {
		payload := make([]byte, s.cfg.MaxPayload)
		n, err := io.ReadFull(s.src, payload)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return errors.Wrap(err, "read input")
		}

		seg := NewDataSegment(s.nextOffset, payload[:n])
		if n == 0 {
			log.Debugw("end of input", "offset", s.nextOffset)
			seg = NewDataSegment(s.nextOffset, nil)
			s.eofQueued = true
		}
		s.nextOffset += uint32(n)

		log.Debugw("sending", "seg", seg, "inflight", s.window.Len()+1, "cwnd", s.cc.Window())
		if err := s.window.EnqueueAndSend(seg, s.ch); err != nil {
			return err
		}
		s.metrics.SegmentsSent.Inc()
	}
	return nil
}

func (s *Sender) handleAck(seg Segment) error {
	if seg.Control != ControlAck {
		return nil
	}
	s.metrics.AcksReceived.Inc()

	ack := seqnum.Value(seg.AckOffset)
	last := seqnum.Value(s.lastAcked)
	switch {
	case last.LessThan(ack):
		s.lastAcked = seg.AckOffset
		s.dupAcks = 0
		s.retries = 0
		removed := s.window.Acknowledge(seg.AckOffset)
		s.cc.OnAck(removed)
		log.Debugw("ack", "offset", seg.AckOffset, "removed", removed, "cc", s.cc)
	case ack == last && s.window.Len() > 0:
		s.dupAcks++
		s.metrics.DuplicateAcks.Inc()
		log.Debugw("duplicate ack", "offset", seg.AckOffset, "count", s.dupAcks)
		if s.dupAcks >= s.cfg.DupAckThreshold {
			if err := s.fastRetransmit(); err != nil {
				return err
			}
		}
	default:
		// stale or for an empty window
	}
	s.updateGauges()
	return nil
}

func (s *Sender) fastRetransmit() error {
	head, _ := s.window.Head()
	log.Infow("fast retransmit", "seg", head, "dupacks", s.dupAcks)
	if err := s.window.RetransmitHead(s.ch); err != nil {
		return err
	}
	s.metrics.Retransmits.WithLabelValues(reasonFast).Inc()
	s.cc.OnFastRetransmit()
	s.dupAcks = 0
	return nil
}

// handleTimeout resends the head, collapses the window and re-arms the timer.
func (s *Sender) handleTimeout() error {
	head, ok := s.window.Head()
	if !ok {
		s.timer.Disarm()
		return nil
	}

	s.retries++
	if s.cfg.MaxRetries > 0 && s.retries > s.cfg.MaxRetries {
		return errors.Wrapf(ErrPeerUnresponsive, "no progress after %d timeouts at offset %d", s.cfg.MaxRetries, s.lastAcked)
	}

	log.Infow("retransmission timeout", "seg", head, "age", s.window.HeadAge(), "retry", s.retries)
	if err := s.window.RetransmitHead(s.ch); err != nil {
		return err
	}
	s.metrics.Retransmits.WithLabelValues(reasonTimeout).Inc()
	s.cc.OnTimeout()
	s.dupAcks = 0
	s.timer.Arm()
	s.updateGauges()
	return nil
}

func (s *Sender) updateGauges() {
	s.metrics.Window.Set(float64(s.cc.Window()))
	s.metrics.SSThresh.Set(float64(s.cc.SSThresh()))
}

// Status renders the connection state as a small table.
func (s *Sender) Status() string {
	res := "Window  SSThresh  Mode                  InFlight  Sent        Acked"
	res += "\n" + fmt.Sprintf("%-6s  %-8s  %-20s  %-8s  %-10s  %s",
		strconv.Itoa(s.cc.Window()),
		strconv.Itoa(s.cc.SSThresh()),
		s.cc.Mode(),
		strconv.Itoa(s.window.Len()),
		strconv.FormatUint(uint64(s.nextOffset), 10),
		strconv.FormatUint(uint64(s.lastAcked), 10))
	return res
}
