package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/gmailpipe/internal/ringbuffer"
)

func TestSinkDoesNotInterleaveRecords(t *testing.T) {
	var out bytes.Buffer
	sink, err := NewSink(&out, 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rec := fmt.Sprintf("writer %d record %d\n%s\n\n", w, i, strings.Repeat("x", 64))
				if err := sink.Write(rec); err != nil {
					t.Errorf("write: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	written, err := sink.Close()
	require.NoError(t, err)
	require.Equal(t, 300, written)

	records := strings.Split(strings.TrimSuffix(out.String(), "\n\n"), "\n\n")
	require.Len(t, records, 300)
	for _, rec := range records {
		lines := strings.Split(rec, "\n")
		require.Len(t, lines, 2, "record %q", rec)
		require.True(t, strings.HasPrefix(lines[0], "writer "))
		require.Equal(t, strings.Repeat("x", 64), lines[1])
	}
}

func TestSinkWriteAfterClose(t *testing.T) {
	sink, err := NewSink(&bytes.Buffer{}, 1)
	require.NoError(t, err)
	_, err = sink.Close()
	require.NoError(t, err)
	require.ErrorIs(t, sink.Write("late"), ringbuffer.ErrClosed)
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("disk full")
	}
	w.n--
	return len(p), nil
}

func TestSinkReportsFirstWriteError(t *testing.T) {
	sink, err := NewSink(&failingWriter{n: 2}, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Write("rec\n"))
	}
	written, err := sink.Close()
	require.Equal(t, 2, written)
	require.ErrorContains(t, err, "disk full")
}

func TestNewSinkRejectsBadArguments(t *testing.T) {
	_, err := NewSink(nil, 1)
	require.Error(t, err)
	_, err = NewSink(&bytes.Buffer{}, 0)
	require.ErrorIs(t, err, ringbuffer.ErrInvalidCapacity)
}
