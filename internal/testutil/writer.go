package testutil

import (
	"errors"
	"sync"
)

// ErrWriteFailed is returned by FailingWriter once it fails.
var ErrWriteFailed = errors.New("write failed")

// FailingWriter collects written bytes until Fail is set, then rejects
// every write with ErrWriteFailed.
type FailingWriter struct {
	mu   sync.Mutex
	buf  []byte
	fail bool
}

func (w *FailingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return 0, ErrWriteFailed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Fail switches the writer between failing and accepting writes.
func (w *FailingWriter) Fail(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = fail
}

func (w *FailingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
