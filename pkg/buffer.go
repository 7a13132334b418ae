package protocol

import (
	"os"

	"github.com/pkg/errors"
)

// OpenSource opens the sender's input file for sequential reads.
func OpenSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	return f, nil
}

// CreateSink creates (or truncates) the receiver's output file. *os.File
// supports positioned writes, so re-delivered ranges are harmless.
func CreateSink(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "create output")
	}
	return f, nil
}
