package protocol

import (
	"bytes"
	"io"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

// earlyArrival is a segment held until every byte before it has been delivered.
type earlyArrival struct {
	offset  uint32
	payload []byte
}

func earlyArrivalLess(a, b earlyArrival) bool {
	return a.offset < b.offset
}

// ReassemblyBuffer orders out-of-order payloads and hands contiguous runs to
// the sink. Only entries past the expected offset are ever stored.
type ReassemblyBuffer struct {
	entries  *btree.BTreeG[earlyArrival]
	expected uint32
}

func NewReassemblyBuffer() *ReassemblyBuffer {
	return &ReassemblyBuffer{
		entries: btree.NewG(8, earlyArrivalLess),
	}
}

// Expected is the next byte offset the sink expects.
func (r *ReassemblyBuffer) Expected() uint32 {
	return r.expected
}

// Len is the number of buffered out-of-order entries.
func (r *ReassemblyBuffer) Len() int {
	return r.entries.Len()
}

// Insert stores a data segment. Already delivered offsets are dropped; a second
// arrival at a buffered offset keeps the first payload.
func (r *ReassemblyBuffer) Insert(seg Segment) {
	if seg.SequenceOffset < r.expected || len(seg.Payload) == 0 {
		return
	}

	entry := earlyArrival{offset: seg.SequenceOffset, payload: seg.Payload}
	if prev, ok := r.entries.Get(entry); ok {
		if !bytes.Equal(prev.payload, entry.payload) {
			log.Warnw("divergent payload for buffered offset, keeping first",
				"offset", seg.SequenceOffset, "kept", len(prev.payload), "dropped", len(entry.payload))
		}
		return
	}
	r.entries.ReplaceOrInsert(entry)
}

// DrainReady writes every entry contiguous with the expected offset to sink at
// its own offset and returns the new expected offset.
func (r *ReassemblyBuffer) DrainReady(sink io.WriterAt) (uint32, error) {
	for {
		head, ok := r.entries.Min()
		if !ok || head.offset > r.expected {
			return r.expected, nil
		}
		if head.offset < r.expected {
			// overlapped by an earlier delivery
			r.entries.DeleteMin()
			continue
		}
		if _, err := sink.WriteAt(head.payload, int64(head.offset)); err != nil {
			return r.expected, errors.Wrapf(err, "write %d bytes at offset %d", len(head.payload), head.offset)
		}
		r.entries.DeleteMin()
		r.expected = head.offset + uint32(len(head.payload))
	}
}
