package protocol

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Sink is the receiver's output. Writes land at explicit offsets so a
// re-delivered range overwrites itself with identical bytes.
type Sink interface {
	io.WriterAt
	io.Closer
}

// Receiver rebuilds the sender's stream into sink. All of its state is owned
// by the goroutine calling Run.
type Receiver struct {
	cfg     Config
	ch      Channel
	sink    Sink
	clock   clock.Clock
	metrics *Metrics
	trace   *Trace

	buf        *ReassemblyBuffer
	lastAck    uint32
	finished   bool
	sinkClosed bool
}

func NewReceiver(ch Channel, sink Sink, cfg Config, opts ...Option) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Receiver{
		cfg:     cfg,
		ch:      ch,
		sink:    sink,
		clock:   o.clock,
		metrics: o.metrics,
		trace:   o.trace,
		buf:     NewReassemblyBuffer(),
	}, nil
}

// Expected is the receiver's expected-offset cursor.
func (r *Receiver) Expected() uint32 {
	return r.buf.Expected()
}

// Finished reports whether end of stream has been accepted.
func (r *Receiver) Finished() bool {
	return r.finished
}

// Run receives until end of stream, then lingers to re-acknowledge a
// retransmitted terminal segment. It takes ownership of the channel and the
// sink and closes both before returning.
func (r *Receiver) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		err = multierr.Combine(err,
			r.closeSink(),
			errors.Wrap(r.ch.Close(), "close channel"),
			errors.Wrap(r.trace.Flush(), "flush trace"))
	}()

	segs := readSegments(ctx, r.ch, r.cfg.MaxPayload, r.metrics)
	for !r.finished {
		select {
		case in := <-segs:
			if in.err != nil {
				return in.err
			}
			if err := r.handleSegment(in.seg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Infow("stream complete", "bytes", humanize.Bytes(uint64(r.buf.Expected())))
	r.linger(ctx, segs)
	return nil
}

func (r *Receiver) handleSegment(seg Segment) error {
	if seg.Control != ControlData {
		return nil
	}

	if seg.IsTerminal() {
		if seg.SequenceOffset != r.buf.Expected() {
			log.Debugw("end of stream before all data", "seg", seg, "expected", r.buf.Expected())
			return r.sendAck(r.buf.Expected())
		}
		r.finished = true
		if err := r.closeSink(); err != nil {
			return err
		}
		return r.sendAck(seg.End())
	}

	r.trace.Record(r.clock.Now(), int64(len(seg.Payload)), int64(seg.SequenceOffset))
	log.Debugw("received", "seg", seg, "expected", r.buf.Expected())

	before := r.buf.Expected()
	r.buf.Insert(seg)
	expected, err := r.buf.DrainReady(r.sink)
	if err != nil {
		return err
	}
	r.metrics.BytesDelivered.Add(float64(expected - before))
	return r.sendAck(expected)
}

func (r *Receiver) sendAck(offset uint32) error {
	if offset < r.lastAck {
		offset = r.lastAck
	}
	r.lastAck = offset
	r.metrics.AcksSent.Inc()
	return sendSegment(r.ch, NewAckSegment(offset))
}

// linger answers retransmitted segments with the final ACK until the peer
// has been quiet for the configured period.
func (r *Receiver) linger(ctx context.Context, segs <-chan inbound) {
	if r.cfg.Linger <= 0 {
		return
	}
	quiet := r.clock.Timer(r.cfg.Linger)
	defer func() { quiet.Stop() }()

	for {
		select {
		case in := <-segs:
			if in.err != nil {
				return
			}
			if in.seg.Control != ControlData {
				continue
			}
			if err := r.sendAck(r.lastAck); err != nil {
				log.Warnw("re-acknowledging end of stream", "err", err)
				return
			}
			quiet.Stop()
			quiet = r.clock.Timer(r.cfg.Linger)
		case <-quiet.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Receiver) closeSink() error {
	if r.sinkClosed {
		return nil
	}
	r.sinkClosed = true
	return errors.Wrap(r.sink.Close(), "close output")
}
