package protocol

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func newTestWindow() (*SendWindow, *RetransmitTimer, *clock.Mock) {
	clk := clock.NewMock()
	timer := NewRetransmitTimer(clk, 100*time.Millisecond)
	return NewSendWindow(timer, clk), timer, clk
}

func TestSendWindowArmsOnFirstSegment(t *testing.T) {
	w, timer, _ := newTestWindow()
	ch := &recordingChannel{}

	require.NoError(t, w.EnqueueAndSend(NewDataSegment(0, []byte("aaaa")), ch))
	require.True(t, timer.Armed())
	require.NoError(t, w.EnqueueAndSend(NewDataSegment(4, []byte("bbbb")), ch))
	require.Equal(t, 2, w.Len())
	require.Len(t, ch.Sent(), 2)

	head, ok := w.Head()
	require.True(t, ok)
	require.Equal(t, uint32(0), head.SequenceOffset)
}

func TestSendWindowCumulativeAck(t *testing.T) {
	w, timer, _ := newTestWindow()
	ch := &recordingChannel{}
	for off := uint32(0); off < 12; off += 4 {
		require.NoError(t, w.EnqueueAndSend(NewDataSegment(off, []byte("xxxx")), ch))
	}

	require.Zero(t, w.Acknowledge(3), "partial coverage removes nothing")
	require.Equal(t, 2, w.Acknowledge(8))
	require.Equal(t, 1, w.Len())
	require.True(t, timer.Armed())

	head, _ := w.Head()
	require.Equal(t, uint32(8), head.SequenceOffset)

	require.Equal(t, 1, w.Acknowledge(12))
	require.Zero(t, w.Len())
	require.False(t, timer.Armed())
	_, ok := w.Head()
	require.False(t, ok)
}

func TestSendWindowAckRestartsTimer(t *testing.T) {
	w, timer, clk := newTestWindow()
	ch := &recordingChannel{}
	require.NoError(t, w.EnqueueAndSend(NewDataSegment(0, []byte("ab")), ch))
	require.NoError(t, w.EnqueueAndSend(NewDataSegment(2, []byte("cd")), ch))

	clk.Add(80 * time.Millisecond)
	w.Acknowledge(2)
	clk.Add(80 * time.Millisecond)
	require.False(t, fired(timer))
	clk.Add(20 * time.Millisecond)
	require.True(t, fired(timer))
}

func TestSendWindowTerminalAck(t *testing.T) {
	w, _, _ := newTestWindow()
	ch := &recordingChannel{}
	require.NoError(t, w.EnqueueAndSend(NewDataSegment(0, []byte("ab")), ch))
	require.NoError(t, w.EnqueueAndSend(NewDataSegment(2, nil), ch))

	require.Equal(t, 1, w.Acknowledge(2))
	require.Equal(t, 1, w.Len(), "terminal segment needs its own unit")
	require.Equal(t, 1, w.Acknowledge(3))
}

func TestSendWindowRetransmitHead(t *testing.T) {
	w, _, clk := newTestWindow()
	ch := &recordingChannel{}

	require.NoError(t, w.RetransmitHead(ch))
	require.Empty(t, ch.Sent())

	require.NoError(t, w.EnqueueAndSend(NewDataSegment(0, []byte("ab")), ch))
	require.NoError(t, w.EnqueueAndSend(NewDataSegment(2, []byte("cd")), ch))
	clk.Add(30 * time.Millisecond)
	require.NoError(t, w.RetransmitHead(ch))

	sent := ch.Sent()
	require.Len(t, sent, 3)
	require.Equal(t, sent[0], sent[2])
	require.Equal(t, 30*time.Millisecond, w.HeadAge())
}
