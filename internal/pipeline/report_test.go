package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleSummary(failures int) Summary {
	var s Summary
	s.Enumerated = 40
	for i := 0; i < 40-failures; i++ {
		s.succeed()
	}
	for i := 0; i < failures; i++ {
		s.fail(fmt.Sprintf("m-%02d", i), StageConsume, errors.New("boom"))
	}
	return s
}

func TestPrintHuman(t *testing.T) {
	job := Job{Command: CommandTrash, Source: LabelSource{Names: []string{"Promo"}}}
	rep := NewReport(job, sampleSummary(25), nil, 1500*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, PrintHuman(rep, &buf))
	out := buf.String()
	require.Contains(t, out, "gmailpipe trash: labels Promo (1.5s)")
	require.Contains(t, out, "processed  40")
	require.Contains(t, out, "succeeded  15")
	require.Contains(t, out, "failed     25")
	require.Contains(t, out, "m-19")
	require.NotContains(t, out, "m-20")
	require.Contains(t, out, "... and 5 more")
	require.NotContains(t, out, "Aborted")
	require.NotContains(t, out, "skipped")
}

func TestPrintHumanAborted(t *testing.T) {
	sum := sampleSummary(0)
	sum.Skipped = 3
	err := &FatalError{Cause: errors.New("token expired"), Summary: sum}
	rep := NewReport(Job{Command: CommandFilter, Source: IDSource{}}, sum, err, time.Second)

	var buf bytes.Buffer
	require.NoError(t, PrintHuman(rep, &buf))
	require.Contains(t, buf.String(), "skipped    3")
	require.Contains(t, buf.String(), "Aborted: pipeline aborted after 40 processed: token expired")
}

func TestWriteJSON(t *testing.T) {
	t.Chdir(t.TempDir())
	rep := NewReport(Job{Command: CommandTrash, Source: IDSource{}}, sampleSummary(1), nil, time.Second)

	require.NoError(t, WriteJSON(rep, "report.json"))
	data, err := os.ReadFile("report.json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "trash", decoded["command"])
	summary := decoded["summary"].(map[string]any)
	require.EqualValues(t, 39, summary["succeeded"])
	failures := summary["failures"].([]any)
	require.Len(t, failures, 1)
	require.Equal(t, "boom", failures[0].(map[string]any)["error"])
	require.Equal(t, "consume", failures[0].(map[string]any)["stage"])
}

func TestWriteJSONRejectsUnsafePaths(t *testing.T) {
	rep := Report{}
	for _, p := range []string{"", "  ", filepath.Join(string(filepath.Separator), "tmp", "r.json"), "../r.json"} {
		require.Error(t, WriteJSON(rep, p), "path %q", p)
	}
}

func TestWriteJSONAcceptsDotPrefixedNames(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, WriteJSON(Report{}, "..report.json"))
	_, err := os.Stat("..report.json")
	require.NoError(t, err)
	require.Error(t, WriteJSON(Report{}, ".."))
}
