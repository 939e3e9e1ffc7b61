package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/ringbuffer"
)

// ConsumerPool applies an Action to every ID popped from the buffer until
// the buffer is closed and drained.
type ConsumerPool struct {
	env     *Env
	buf     *ringbuffer.RingBuffer[gmail.MessageID]
	action  Action
	log     *slog.Logger
	g       errgroup.Group
	results []Summary
}

// SpawnConsumers starts count consumer goroutines.
func SpawnConsumers(
	ctx context.Context,
	env *Env,
	count int,
	action Action,
	buf *ringbuffer.RingBuffer[gmail.MessageID],
) (*ConsumerPool, error) {
	if count < MinThreads || count > MaxThreads {
		return nil, fmt.Errorf("consumers %d: %w", count, ErrInvalidThreads)
	}
	c := &ConsumerPool{
		env:     env,
		buf:     buf,
		action:  action,
		log:     env.logger().With("component", "consumers", "action", action.Name()),
		results: make([]Summary, count),
	}
	for i := range count {
		c.g.Go(func() error {
			return c.run(ctx, i, &c.results[i])
		})
	}
	return c, nil
}

// Wait joins every consumer and returns their combined summary.
func (c *ConsumerPool) Wait() (Summary, error) {
	err := c.g.Wait()
	var sum Summary
	for _, r := range c.results {
		sum.Add(r)
	}
	return sum, err
}

// run keeps popping after an abort so the buffer drains; those items are
// counted as skipped.
func (c *ConsumerPool) run(ctx context.Context, i int, sum *Summary) error {
	var fatal error
	for {
		id, ok := c.buf.Pop()
		if !ok {
			c.log.Debug("consumer done", "consumer", i, "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
			return fatal
		}
		if c.env.stopped(ctx) {
			sum.Skipped++
			continue
		}
		err := c.env.call(ctx, func(ctx context.Context) error {
			if err := c.env.wait(ctx, "rate limit "+c.action.Name()); err != nil {
				return err
			}
			return c.action.Apply(ctx, id)
		})
		switch {
		case err == nil:
			sum.succeed()
		case IsFatal(err):
			c.log.Error("unrecoverable error", "consumer", i, "id", id, "error", err)
			sum.fail(string(id), StageConsume, err)
			fatal = err
		case c.env.stopped(ctx):
			sum.Skipped++
		default:
			c.log.Warn("action failed", "consumer", i, "id", id, "error", err)
			sum.fail(string(id), StageConsume, err)
		}
	}
}
