package protocol

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// Trace appends timestamped CSV rows for offline plotting. A nil *Trace
// records nothing.
type Trace struct {
	w *csv.Writer
}

func NewTrace(w io.Writer, columns ...string) *Trace {
	t := &Trace{w: csv.NewWriter(w)}
	t.w.Write(append([]string{"time"}, columns...))
	return t
}

// Record writes one row stamped with now in epoch seconds.
func (t *Trace) Record(now time.Time, values ...int64) {
	if t == nil {
		return
	}
	row := make([]string, 0, len(values)+1)
	row = append(row, strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64))
	for _, v := range values {
		row = append(row, strconv.FormatInt(v, 10))
	}
	t.w.Write(row)
}

// Flush pushes buffered rows to the writer.
func (t *Trace) Flush() error {
	if t == nil {
		return nil
	}
	t.w.Flush()
	return t.w.Error()
}
