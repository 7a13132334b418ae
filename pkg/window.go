package protocol

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/netstack/tcpip/seqnum"
)

// inFlight is a transmitted segment waiting for acknowledgment.
type inFlight struct {
	seg    Segment
	sentAt time.Time
}

// SendWindow keeps unacknowledged segments in transmission order, which is
// also ascending offset order. The head is the oldest unacknowledged segment.
type SendWindow struct {
	queue []inFlight
	timer *RetransmitTimer
	clock clock.Clock
}

func NewSendWindow(timer *RetransmitTimer, clk clock.Clock) *SendWindow {
	return &SendWindow{timer: timer, clock: clk}
}

// Len is the number of outstanding segments.
func (w *SendWindow) Len() int {
	return len(w.queue)
}

// Head returns the oldest unacknowledged segment.
func (w *SendWindow) Head() (Segment, bool) {
	if len(w.queue) == 0 {
		return Segment{}, false
	}
	return w.queue[0].seg, true
}

// HeadAge is how long the head has been outstanding since its first send.
func (w *SendWindow) HeadAge() time.Duration {
	if len(w.queue) == 0 {
		return 0
	}
	return w.clock.Since(w.queue[0].sentAt)
}

// EnqueueAndSend records seg at the tail, transmits it, and arms the timer if
// the window was empty.
func (w *SendWindow) EnqueueAndSend(seg Segment, ch Channel) error {
	wasEmpty := len(w.queue) == 0
	w.queue = append(w.queue, inFlight{seg: seg, sentAt: w.clock.Now()})
	if wasEmpty {
		w.timer.Arm()
	}
	return sendSegment(ch, seg)
}

// Acknowledge drops every head segment ending at or before ackOffset and
// returns how many were dropped. The timer is disarmed when nothing remains
// and restarted when a new segment moved to the head.
func (w *SendWindow) Acknowledge(ackOffset uint32) int {
	ack := seqnum.Value(ackOffset)
	removed := 0
	for removed < len(w.queue) && seqnum.Value(w.queue[removed].seg.End()).LessThanEq(ack) {
		removed++
	}
	if removed == 0 {
		return 0
	}

	clear(w.queue[:removed])
	w.queue = w.queue[removed:]
	if len(w.queue) == 0 {
		w.queue = nil
		w.timer.Disarm()
	} else {
		w.timer.Restart()
	}
	return removed
}

// RetransmitHead resends the head segment unchanged. It is a no-op on an
// empty window.
func (w *SendWindow) RetransmitHead(ch Channel) error {
	head, ok := w.Head()
	if !ok {
		return nil
	}
	return sendSegment(ch, head)
}
