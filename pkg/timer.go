package protocol

import (
	"time"

	"github.com/benbjohnson/clock"
)

// RetransmitTimer is the single retransmission timer of a sender connection.
// It never runs a callback: expiry is delivered on C and handled by the
// sender loop, so it cannot interleave with ACK processing.
type RetransmitTimer struct {
	clock   clock.Clock
	timeout time.Duration
	timer   *clock.Timer
}

func NewRetransmitTimer(clk clock.Clock, timeout time.Duration) *RetransmitTimer {
	return &RetransmitTimer{clock: clk, timeout: timeout}
}

// Arm starts a full countdown, discarding any pending one.
func (t *RetransmitTimer) Arm() {
	t.Disarm()
	t.timer = t.clock.Timer(t.timeout)
}

// Disarm cancels a pending expiry. After it returns C will not deliver until
// the next Arm.
func (t *RetransmitTimer) Disarm() {
	if t.timer == nil {
		return
	}
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.timer = nil
}

func (t *RetransmitTimer) Restart() {
	t.Disarm()
	t.Arm()
}

func (t *RetransmitTimer) Armed() bool {
	return t.timer != nil
}

// C delivers expiries. It is nil while disarmed, which blocks forever in a select.
func (t *RetransmitTimer) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.C
}

func (t *RetransmitTimer) Timeout() time.Duration {
	return t.timeout
}
