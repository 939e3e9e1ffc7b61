package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/rate"
	"github.com/joshsymonds/gmailpipe/internal/retry"
	"github.com/joshsymonds/gmailpipe/internal/ringbuffer"
)

// Command selects what consumers do with each message.
type Command int

const (
	CommandTrash Command = iota
	CommandFilter
)

func (c Command) String() string {
	switch c {
	case CommandTrash:
		return "trash"
	case CommandFilter:
		return "filter"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Job is one pipeline run.
type Job struct {
	Command Command
	Source  Source
	Pool    PoolConfig
	// Output receives summary records; required for CommandFilter.
	Output io.Writer
}

// Orchestrator wires a Job to the producer and consumer pools.
type Orchestrator struct {
	Client   gmail.Client
	Limiter  rate.Limiter
	Logger   *slog.Logger
	Retry    retry.Policy
	NewRunID func() string
}

// NewOrchestrator returns an orchestrator with the default retry policy.
func NewOrchestrator(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Orchestrator{
		Client:   client,
		Limiter:  limiter,
		Logger:   logger,
		Retry:    retry.DefaultPolicy(),
		NewRunID: uuid.NewString,
	}
}

// Run executes job to completion and returns the merged summary. When the
// run is aborted the error is a *FatalError carrying the partial summary.
// Cancelling ctx aborts the run the same way.
func (o *Orchestrator) Run(ctx context.Context, job Job) (Summary, error) {
	if err := job.Pool.Validate(); err != nil {
		return Summary{}, err
	}
	if job.Source == nil {
		return Summary{}, errors.New("job has no source")
	}
	if job.Command == CommandFilter && job.Output == nil {
		return Summary{}, errors.New("filter job has no output")
	}
	buf, err := ringbuffer.New[gmail.MessageID](job.Pool.BufferCapacity())
	if err != nil {
		return Summary{}, fmt.Errorf("create buffer: %w", err)
	}

	runID := uuid.NewString()
	if o.NewRunID != nil {
		runID = o.NewRunID()
	}
	log := o.logger().With("run_id", runID, "command", job.Command.String())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	fatal := NewFatalSignal(cancel, buf.Close)
	stop := context.AfterFunc(ctx, func() {
		fatal.Raise(fmt.Errorf("run interrupted: %w", context.Cause(ctx)))
	})
	defer stop()

	env := &Env{
		Client:   o.Client,
		Limiter:  o.Limiter,
		Retry:    o.Retry,
		Logger:   log,
		Fatal:    fatal,
		PageSize: job.Pool.pageSize(),
	}

	var (
		action Action
		sink   *Sink
	)
	switch job.Command {
	case CommandTrash:
		action = TrashAction{Client: o.Client}
	case CommandFilter:
		sink, err = NewSink(job.Output, buf.Cap())
		if err != nil {
			return Summary{}, err
		}
		action = SummaryAction{Client: o.Client, Sink: sink}
	default:
		return Summary{}, fmt.Errorf("unsupported command %s", job.Command)
	}

	log.Info("run started",
		"source", job.Source.Describe(),
		"producers", job.Pool.Producers,
		"consumers", job.Pool.Consumers,
		"capacity", buf.Cap(),
	)
	start := time.Now()

	producers, err := SpawnProducers(runCtx, env, job.Pool.Producers, job.Source, buf)
	if err != nil {
		if sink != nil {
			_, _ = sink.Close()
		}
		return Summary{}, err
	}
	consumers, err := SpawnConsumers(runCtx, env, job.Pool.Consumers, action, buf)
	if err != nil {
		fatal.Raise(err)
		_, _ = producers.Wait()
		if sink != nil {
			_, _ = sink.Close()
		}
		return Summary{}, err
	}

	var (
		g                  errgroup.Group
		produced, consumed Summary
	)
	g.Go(func() error {
		var werr error
		produced, werr = producers.Wait()
		return werr
	})
	g.Go(func() error {
		var werr error
		consumed, werr = consumers.Wait()
		return werr
	})
	joinErr := g.Wait()
	stop()
	cause := fatal.Err()

	var sum Summary
	sum.Add(produced)
	sum.Add(consumed)

	var sinkErr error
	if sink != nil {
		written, cerr := sink.Close()
		log.Debug("summary records written", "records", written)
		sinkErr = cerr
	}

	if cause == nil {
		cause = joinErr
	}
	if cause != nil {
		log.Error("run aborted",
			"error", cause,
			"processed", sum.Processed,
			"skipped", sum.Skipped,
			"duration", time.Since(start),
		)
		return sum, &FatalError{Cause: cause, Summary: sum}
	}
	if sinkErr != nil {
		return sum, fmt.Errorf("write summaries: %w", sinkErr)
	}
	log.Info("run finished",
		"enumerated", sum.Enumerated,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"duration", time.Since(start),
	)
	return sum, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return o.Logger
}
