package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/retry"
	"github.com/joshsymonds/gmailpipe/internal/ringbuffer"
)

func runWithin(t *testing.T, d time.Duration, o *Orchestrator, ctx context.Context, job Job) (Summary, error) {
	t.Helper()
	type result struct {
		sum Summary
		err error
	}
	done := make(chan result, 1)
	go func() {
		sum, err := o.Run(ctx, job)
		done <- result{sum, err}
	}()
	select {
	case r := <-done:
		return r.sum, r.err
	case <-time.After(d):
		t.Fatalf("run did not finish within %s", d)
		return Summary{}, nil
	}
}

func TestRunSingleProducerSingleConsumerKeepsOrder(t *testing.T) {
	client := newFakeClient()
	in := []gmail.MessageID{"a", "b", "c", "d", "e"}
	var out bytes.Buffer

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandFilter,
		Source:  IDSource{IDs: in},
		Pool:    PoolConfig{Producers: 1, Consumers: 1, Capacity: 3},
		Output:  &out,
	})
	require.NoError(t, err)
	require.Equal(t, 5, sum.Enumerated)
	require.Equal(t, 5, sum.Succeeded)
	require.Zero(t, sum.Failed)

	var want strings.Builder
	for _, id := range in {
		msg, err := client.GetMessage(context.Background(), id)
		require.NoError(t, err)
		want.WriteString(FormatRecord(id, msg))
	}
	require.Equal(t, want.String(), out.String())
}

func TestRunThreeProducersFourConsumersTrash(t *testing.T) {
	client := newFakeClient()
	all := ids("m", 300)

	sum, err := runWithin(t, 10*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: all},
		Pool:    PoolConfig{Producers: 3, Consumers: 4, Capacity: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 300, sum.Enumerated)
	require.Equal(t, 300, sum.Processed)
	require.Equal(t, 300, sum.Succeeded+sum.Failed)
	require.Equal(t, 300, sum.Succeeded)
	require.Len(t, client.trashedIDs(), 300)
	for _, id := range all {
		assert.Equal(t, 1, client.trashCount(id), "id %s", id)
	}
}

func TestRunRecordsFailedVerifyPageAndContinues(t *testing.T) {
	client := newFakeClient()
	client.metaErr = func(id gmail.MessageID) error {
		if id == "m-007" {
			return fmt.Errorf("get metadata: %w", gmail.ErrUnavailable)
		}
		return nil
	}
	o := newTestOrchestrator(client)

	sum, err := runWithin(t, 5*time.Second, o, context.Background(), Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: ids("m", 15)},
		Pool:    PoolConfig{Producers: 1, Consumers: 2, PageSize: 5},
	})
	require.NoError(t, err)
	require.Equal(t, 15, sum.Processed)
	require.Equal(t, 10, sum.Succeeded)
	require.Equal(t, 5, sum.Failed)
	require.Equal(t, 3, client.metaCount("m-007"))

	var failed []string
	for _, f := range sum.Failures {
		assert.Equal(t, StageProduce, f.Stage)
		assert.ErrorIs(t, f.Err, gmail.ErrUnavailable)
		failed = append(failed, f.ID)
	}
	require.ElementsMatch(t, []string{"m-005", "m-006", "m-007", "m-008", "m-009"}, failed)
	require.Zero(t, client.trashCount("m-005"))
	require.Equal(t, 1, client.trashCount("m-010"))
}

func TestRunFailedQueryPageEndsCursorChain(t *testing.T) {
	client := newFakeClient()
	client.addPage("from:x", "", gmail.ListPage{IDs: ids("q", 3), NextPageToken: "t1"})
	client.listErr = func(_, token string) error {
		if token == "t1" {
			return fmt.Errorf("list: %w", gmail.ErrUnavailable)
		}
		return nil
	}

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandTrash,
		Source:  QuerySource{Query: gmail.Query{Raw: "from:x"}},
		Pool:    PoolConfig{Producers: 2, Consumers: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Enumerated)
	require.Equal(t, 3, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	require.Equal(t, "page:t1", sum.Failures[0].ID)
	require.Equal(t, StageProduce, sum.Failures[0].Stage)
	require.Equal(t, 3, client.listCalls["from:x|t1"])
}

func TestRunQueryRetriesTransientListErrors(t *testing.T) {
	client := newFakeClient()
	client.addPage("is:unread", "", gmail.ListPage{IDs: ids("q", 4), NextPageToken: "t1"})
	client.addPage("is:unread", "t1", gmail.ListPage{IDs: ids("r", 4)})
	var attempts atomic.Int32
	client.listErr = func(_, token string) error {
		if token == "" && attempts.Add(1) <= 2 {
			return gmail.ErrRateLimited
		}
		return nil
	}
	var out bytes.Buffer

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandFilter,
		Source:  QuerySource{Query: gmail.Query{Raw: "is:unread"}},
		Pool:    PoolConfig{Producers: 3, Consumers: 2},
		Output:  &out,
	})
	require.NoError(t, err)
	require.Equal(t, 8, sum.Enumerated)
	require.Equal(t, 8, sum.Succeeded)
	require.Equal(t, 8, strings.Count(out.String(), "Message ID: "))
	require.Contains(t, out.String(), "Message ID: r-003\n")
}

func TestRunLabelsDedupeAndUnknownLabel(t *testing.T) {
	client := newFakeClient()
	client.labels = map[string]gmail.LabelID{"Work": "Label_1", "Promo": "Label_2"}
	client.addPage("Label_1", "", gmail.ListPage{IDs: []gmail.MessageID{"a", "b", "c"}})
	client.addPage("Label_2", "", gmail.ListPage{IDs: []gmail.MessageID{"c", "d"}})
	client.addPage("INBOX", "", gmail.ListPage{IDs: []gmail.MessageID{"e", "a"}})

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandTrash,
		Source:  LabelSource{Names: []string{"Work", "Promo", "Missing", "INBOX", "Work"}},
		Pool:    PoolConfig{Producers: 2, Consumers: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 5, sum.Enumerated)
	require.Equal(t, 5, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, client.trashedIDs())
	for _, id := range []gmail.MessageID{"a", "b", "c", "d", "e"} {
		assert.Equal(t, 1, client.trashCount(id), "id %s", id)
	}
	require.Len(t, sum.Failures, 1)
	require.Equal(t, "label:Missing", sum.Failures[0].ID)
	require.Equal(t, StageResolve, sum.Failures[0].Stage)
	require.ErrorIs(t, sum.Failures[0].Err, ErrUnknownLabel)
}

func TestRunMissingIDFailsWithoutRetry(t *testing.T) {
	client := newFakeClient()
	client.missing["gone"] = true

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: []gmail.MessageID{"a", "gone", "b", "a", " "}},
		Pool:    PoolConfig{Producers: 2, Consumers: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 2, sum.Enumerated)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, client.metaCount("gone"))
	require.Equal(t, "gone", sum.Failures[0].ID)
	require.ErrorIs(t, sum.Failures[0].Err, gmail.ErrNotFound)
}

func TestRunRetriesConsumerActions(t *testing.T) {
	client := newFakeClient()
	var flaky atomic.Int32
	client.trashErr = func(_ context.Context, id gmail.MessageID) error {
		switch id {
		case "flaky":
			if flaky.Add(1) <= 2 {
				return gmail.ErrRateLimited
			}
		case "broken":
			return fmt.Errorf("trash: %w", gmail.ErrUnavailable)
		}
		return nil
	}

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: []gmail.MessageID{"ok", "flaky", "broken"}},
		Pool:    PoolConfig{Producers: 1, Consumers: 3},
	})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Processed)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, int32(3), flaky.Load())
	require.Equal(t, "broken", sum.Failures[0].ID)
	require.Equal(t, StageConsume, sum.Failures[0].Stage)
}

func TestRunAbortsOnAuthenticationFailure(t *testing.T) {
	client := newFakeClient()
	var calls atomic.Int32
	client.trashErr = func(context.Context, gmail.MessageID) error {
		if calls.Add(1) > 20 {
			return fmt.Errorf("trash: %w", gmail.ErrUnauthenticated)
		}
		return nil
	}

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), context.Background(), Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: ids("m", 200)},
		Pool:    PoolConfig{Producers: 2, Consumers: 3, Capacity: 4},
	})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	require.ErrorIs(t, err, gmail.ErrUnauthenticated)
	require.Equal(t, sum, fatal.Summary)

	require.Equal(t, 20, sum.Succeeded)
	require.GreaterOrEqual(t, sum.Failed, 1)
	require.Less(t, sum.Enumerated, 200)
	// every inserted ID was popped exactly once: acted on or skipped
	require.Equal(t, sum.Enumerated, sum.Processed+sum.Skipped)
}

func TestRunAbortDuringBackoffSkipsRetryingItem(t *testing.T) {
	client := newFakeClient()
	client.trashErr = func(_ context.Context, id gmail.MessageID) error {
		switch id {
		case "flaky":
			return fmt.Errorf("trash: %w", gmail.ErrConnectivity)
		case "auth":
			time.Sleep(50 * time.Millisecond)
			return fmt.Errorf("trash: %w", gmail.ErrUnauthenticated)
		}
		return nil
	}
	o := newTestOrchestrator(client)
	o.Retry = retry.Policy{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 2 * time.Second}

	start := time.Now()
	sum, err := runWithin(t, 5*time.Second, o, context.Background(), Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: []gmail.MessageID{"flaky", "auth"}},
		Pool:    PoolConfig{Producers: 1, Consumers: 2},
	})
	require.Less(t, time.Since(start), time.Second)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	require.ErrorIs(t, err, gmail.ErrUnauthenticated)
	require.NotErrorIs(t, err, gmail.ErrConnectivity)

	// one connectivity attempt is not a spent retry budget
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Skipped)
	require.Len(t, sum.Failures, 1)
	require.Equal(t, "auth", sum.Failures[0].ID)
	require.Equal(t, StageConsume, sum.Failures[0].Stage)
}

func TestRunAbortsWhenContextCancelled(t *testing.T) {
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	client.trashErr = func(ctx context.Context, _ gmail.MessageID) error {
		once.Do(cancel)
		<-ctx.Done()
		return ctx.Err()
	}

	sum, err := runWithin(t, 5*time.Second, newTestOrchestrator(client), ctx, Job{
		Command: CommandTrash,
		Source:  IDSource{IDs: ids("m", 500)},
		Pool:    PoolConfig{Producers: 2, Consumers: 2, Capacity: 4},
	})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, sum.Succeeded)
	require.Less(t, sum.Enumerated, 500)
	require.Equal(t, sum.Enumerated, sum.Processed+sum.Skipped)
}

func TestRunRejectsInvalidJobs(t *testing.T) {
	src := IDSource{IDs: []gmail.MessageID{"a"}}
	tests := []struct {
		name string
		job  Job
		want error
	}{
		{name: "no-producers", job: Job{Source: src, Pool: PoolConfig{Producers: 0, Consumers: 1}}, want: ErrInvalidThreads},
		{name: "too-many-producers", job: Job{Source: src, Pool: PoolConfig{Producers: 11, Consumers: 1}}, want: ErrInvalidThreads},
		{name: "no-consumers", job: Job{Source: src, Pool: PoolConfig{Producers: 1, Consumers: 0}}, want: ErrInvalidThreads},
		{name: "too-many-consumers", job: Job{Source: src, Pool: PoolConfig{Producers: 1, Consumers: 11}}, want: ErrInvalidThreads},
		{name: "negative-capacity", job: Job{Source: src, Pool: PoolConfig{Producers: 1, Consumers: 1, Capacity: -1}}, want: ringbuffer.ErrInvalidCapacity},
		{name: "no-source", job: Job{Pool: PoolConfig{Producers: 1, Consumers: 1}}},
		{name: "filter-without-output", job: Job{Command: CommandFilter, Source: src, Pool: PoolConfig{Producers: 1, Consumers: 1}}},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient()
			_, err := newTestOrchestrator(client).Run(context.Background(), tc.job)
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
			var fatal *FatalError
			require.False(t, errors.As(err, &fatal))
			require.Empty(t, client.trashedIDs())
		})
	}
}
