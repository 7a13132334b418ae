package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T, ch Channel, cfg Config) (*Receiver, *memSink) {
	t.Helper()
	sink := &memSink{}
	r, err := NewReceiver(ch, sink, cfg)
	require.NoError(t, err)
	return r, sink
}

func ackOffsets(segs []Segment) []uint32 {
	var acks []uint32
	for _, s := range segs {
		if s.Control == ControlAck {
			acks = append(acks, s.AckOffset)
		}
	}
	return acks
}

func TestReceiverAcksCumulatively(t *testing.T) {
	ch := &recordingChannel{}
	r, sink := newTestReceiver(t, ch, testConfig())

	require.NoError(t, r.handleSegment(NewDataSegment(100, []byte("BBBB"))))
	require.NoError(t, r.handleSegment(NewDataSegment(0, make([]byte, 100))))
	require.NoError(t, r.handleSegment(NewDataSegment(0, make([]byte, 100))))
	require.NoError(t, r.handleSegment(NewDataSegment(200, []byte("late"))))

	require.Equal(t, []uint32{0, 104, 104, 104}, ackOffsets(ch.Sent()))
	require.Equal(t, uint32(104), r.Expected())
	require.Len(t, sink.Bytes(), 104)
	require.Equal(t, float64(104), testutil.ToFloat64(r.metrics.BytesDelivered))
}

func TestReceiverAcksNeverRegress(t *testing.T) {
	ch := &recordingChannel{}
	r, _ := newTestReceiver(t, ch, testConfig())

	require.NoError(t, r.handleSegment(NewDataSegment(0, make([]byte, 10))))
	require.NoError(t, r.sendAck(3))

	acks := ackOffsets(ch.Sent())
	require.Equal(t, []uint32{10, 10}, acks)
}

func TestReceiverEarlyEndOfStream(t *testing.T) {
	ch := &recordingChannel{}
	r, sink := newTestReceiver(t, ch, testConfig())

	require.NoError(t, r.handleSegment(NewDataSegment(0, make([]byte, 100))))
	require.NoError(t, r.handleSegment(NewDataSegment(300, nil)))

	require.False(t, r.Finished())
	require.False(t, sink.closed)
	require.Equal(t, []uint32{100, 100}, ackOffsets(ch.Sent()))
}

func TestReceiverEndOfStream(t *testing.T) {
	ch := &recordingChannel{}
	r, sink := newTestReceiver(t, ch, testConfig())

	require.NoError(t, r.handleSegment(NewDataSegment(0, []byte("abc"))))
	require.NoError(t, r.handleSegment(NewDataSegment(3, nil)))

	require.True(t, r.Finished())
	require.True(t, sink.closed)
	require.Equal(t, []uint32{3, 4}, ackOffsets(ch.Sent()))
	require.Equal(t, []byte("abc"), sink.Bytes())
}

func TestReceiverIgnoresAcks(t *testing.T) {
	ch := &recordingChannel{}
	r, _ := newTestReceiver(t, ch, testConfig())
	require.NoError(t, r.handleSegment(NewAckSegment(50)))
	require.Empty(t, ch.Sent())
}

func TestReceiverRunLingers(t *testing.T) {
	cfg := testConfig()
	cfg.Linger = 200 * time.Millisecond
	a, b := newPipe()
	defer b.Close()
	r, sink := newTestReceiver(t, a, cfg)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	recvAck := func() uint32 {
		buf := make([]byte, MaxDatagramSize)
		n, err := b.Receive(buf)
		require.NoError(t, err)
		seg, err := Decode(buf[:n], cfg.MaxPayload)
		require.NoError(t, err)
		require.Equal(t, ControlAck, seg.Control)
		return seg.AckOffset
	}

	require.NoError(t, b.Send(Encode(NewDataSegment(0, []byte("data")))))
	require.Equal(t, uint32(4), recvAck())
	require.NoError(t, b.Send(Encode(NewDataSegment(4, nil))))
	require.Equal(t, uint32(5), recvAck())

	// the final ACK was lost; the retransmitted terminal segment is answered
	require.NoError(t, b.Send(Encode(NewDataSegment(4, nil))))
	require.Equal(t, uint32(5), recvAck())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop lingering")
	}
	require.True(t, sink.closed)
	require.Equal(t, []byte("data"), sink.Bytes())
}
