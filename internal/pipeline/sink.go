package pipeline

import (
	"fmt"
	"io"

	"github.com/joshsymonds/gmailpipe/internal/ringbuffer"
)

// Sink serializes records from many consumers onto one writer. A single
// goroutine owns the writer, so records never interleave.
type Sink struct {
	queue   *ringbuffer.RingBuffer[string]
	w       io.Writer
	done    chan struct{}
	written int
	err     error
}

// NewSink starts the writer goroutine. capacity bounds the records queued
// ahead of the writer.
func NewSink(w io.Writer, capacity int) (*Sink, error) {
	if w == nil {
		return nil, fmt.Errorf("sink: nil writer")
	}
	q, err := ringbuffer.New[string](capacity)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	s := &Sink{queue: q, w: w, done: make(chan struct{})}
	go s.run()
	return s, nil
}

// Write queues one record, blocking while the queue is full.
func (s *Sink) Write(record string) error {
	if err := s.queue.Push(record); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

// Close flushes queued records and stops the writer. It returns the number
// of records written and the first write error.
func (s *Sink) Close() (int, error) {
	s.queue.Close()
	<-s.done
	return s.written, s.err
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		rec, ok := s.queue.Pop()
		if !ok {
			return
		}
		if s.err != nil {
			continue
		}
		if _, err := io.WriteString(s.w, rec); err != nil {
			s.err = fmt.Errorf("sink: %w", err)
			continue
		}
		s.written++
	}
}
