// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logstream

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
)

// SwitchableWriter is an io.Writer whose target can be swapped while other
// goroutines are logging. Complete lines are also handed to an optional Sink.
type SwitchableWriter struct {
	target atomic.Pointer[writerWithCloser]
	sink   Sink
	mu     sync.Mutex // guards buf
	buf    bytes.Buffer
}

type writerWithCloser struct {
	w      io.Writer
	closer io.Closer // may be nil
}

func NewSwitchableWriter(initial io.Writer, sink Sink) *SwitchableWriter {
	sw := &SwitchableWriter{sink: sink}
	sw.target.Store(&writerWithCloser{w: initial})
	return sw
}

func (sw *SwitchableWriter) Write(p []byte) (n int, err error) {
	target := sw.target.Load()
	if target == nil || target.w == nil {
		return 0, nil
	}

	n, err = target.w.Write(p)
	if err != nil {
		return n, err //nolint:wrapcheck // io.Writer interface compliance
	}

	if sw.sink != nil {
		sw.captureLines(p[:n])
	}
	return n, nil
}

func (sw *SwitchableWriter) captureLines(p []byte) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.buf.Write(p)
	for {
		line, err := sw.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			sw.buf.WriteString(line)
			return
		}
		line = line[:len(line)-1]
		if line != "" {
			sw.sink.Write(line)
		}
	}
}

// Swap replaces the target and returns the previous closer, if any. The
// caller closes it.
func (sw *SwitchableWriter) Swap(newWriter io.Writer, newCloser io.Closer) io.Closer {
	old := sw.target.Swap(&writerWithCloser{w: newWriter, closer: newCloser})
	if old != nil {
		return old.closer
	}
	return nil
}

func (sw *SwitchableWriter) Sink() Sink {
	return sw.sink
}
