package protocol

import "fmt"

// CongestionController is the slow-start / AIMD window of one sender
// connection, counted in segments.
type CongestionController struct {
	window    int
	ssthresh  int
	maxWindow int
	slowStart bool
	growth    float64 // fractional window credit in congestion avoidance, in [0,1)
}

func NewCongestionController(initialSSThresh, maxWindow int) *CongestionController {
	if maxWindow < 1 {
		maxWindow = 1
	}
	return &CongestionController{
		window:    1,
		ssthresh:  initialSSThresh,
		maxWindow: maxWindow,
		slowStart: true,
	}
}

func (c *CongestionController) Window() int       { return c.window }
func (c *CongestionController) SSThresh() int     { return c.ssthresh }
func (c *CongestionController) InSlowStart() bool { return c.slowStart }

func (c *CongestionController) Mode() string {
	if c.slowStart {
		return "slow-start"
	}
	return "congestion-avoidance"
}

// OnAck grows the window for removed segments newly covered by a cumulative ACK.
func (c *CongestionController) OnAck(removed int) {
	if removed <= 0 {
		return
	}
	if c.slowStart {
		c.window += removed
	} else {
		c.growth += float64(removed) / float64(c.window)
		for c.growth >= 1 {
			c.window++
			c.growth--
		}
	}
	c.clamp()

	if c.window >= c.ssthresh {
		c.slowStart = false
	}
}

// OnTimeout collapses the window after a retransmission timeout.
func (c *CongestionController) OnTimeout() {
	c.ssthresh = max(c.window/2, 2)
	c.window = 1
	c.slowStart = true
	c.growth = 0
}

// OnFastRetransmit applies the same reset as a timeout.
func (c *CongestionController) OnFastRetransmit() {
	c.OnTimeout()
}

func (c *CongestionController) clamp() {
	if c.window > c.maxWindow {
		c.window = c.maxWindow
	}
	if c.window < 1 {
		c.window = 1
	}
}

func (c *CongestionController) String() string {
	return fmt.Sprintf("cwnd=%d ssthresh=%d %s", c.window, c.ssthresh, c.Mode())
}
