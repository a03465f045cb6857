package logging

import (
	"io"
	"log/slog"
)

// NewNop returns a Logger that discards every record. Useful in tests.
func NewNop() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
