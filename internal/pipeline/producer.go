package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/ringbuffer"
)

// ErrUnknownLabel is recorded for a label name the mailbox does not have.
var ErrUnknownLabel = errors.New("unknown label")

// ProducerPool enumerates a Source into the shared buffer. The last producer
// goroutine to finish closes the buffer.
type ProducerPool struct {
	env    *Env
	buf    *ringbuffer.RingBuffer[gmail.MessageID]
	log    *slog.Logger
	active atomic.Int32
	seen   seenSet
	g      errgroup.Group

	setup   Summary   // written before any goroutine starts
	paged   Summary   // owned by the query lead goroutine
	results []Summary // one per producer goroutine
}

type labelRef struct {
	name string
	id   gmail.LabelID
}

// SpawnProducers starts count producer goroutines over src. Enumerable
// sources are sharded so each label or ID belongs to exactly one producer;
// a query is paged by a single lead goroutine that hands each page to the
// producers.
func SpawnProducers(
	ctx context.Context,
	env *Env,
	count int,
	src Source,
	buf *ringbuffer.RingBuffer[gmail.MessageID],
) (*ProducerPool, error) {
	if count < MinThreads || count > MaxThreads {
		return nil, fmt.Errorf("producers %d: %w", count, ErrInvalidThreads)
	}
	p := &ProducerPool{
		env:     env,
		buf:     buf,
		log:     env.logger().With("component", "producers"),
		results: make([]Summary, count),
	}

	switch s := src.(type) {
	case LabelSource:
		labels := p.resolveLabels(ctx, s.Names)
		p.active.Store(int32(count))
		for i, part := range shard(labels, count) {
			p.spawn(ctx, i, func(ctx context.Context, sum *Summary) error {
				for _, l := range part {
					q := gmail.Query{LabelIDs: []gmail.LabelID{l.id}}
					if err := p.enumerate(ctx, q, "label:"+l.name, sum, p.pushAll); err != nil {
						return err
					}
				}
				return nil
			})
		}
	case IDSource:
		ids := dedupe(s.IDs)
		p.active.Store(int32(count))
		for i, part := range shard(ids, count) {
			p.spawn(ctx, i, func(ctx context.Context, sum *Summary) error {
				for _, page := range chunk(part, env.pageSize()) {
					if env.stopped(ctx) {
						return nil
					}
					if err := p.verifyAndPush(ctx, page, sum); err != nil {
						return err
					}
				}
				return nil
			})
		}
	case QuerySource:
		pages := make(chan []gmail.MessageID)
		p.active.Store(int32(count))
		p.g.Go(func() error {
			defer close(pages)
			return p.lead(ctx, s.Query, count, pages)
		})
		for i := 0; i < count; i++ {
			p.spawn(ctx, i, func(ctx context.Context, sum *Summary) error {
				for ids := range pages {
					if !p.pushAll(ctx, ids, sum) {
						return nil
					}
				}
				return nil
			})
		}
	default:
		return nil, fmt.Errorf("unsupported source %T", src)
	}
	return p, nil
}

// Wait joins every producer goroutine and returns their combined summary.
// The error is the first unrecoverable error a producer hit, if any.
func (p *ProducerPool) Wait() (Summary, error) {
	err := p.g.Wait()
	var sum Summary
	sum.Add(p.setup)
	sum.Add(p.paged)
	for _, r := range p.results {
		sum.Add(r)
	}
	return sum, err
}

func (p *ProducerPool) spawn(ctx context.Context, i int, run func(ctx context.Context, sum *Summary) error) {
	p.g.Go(func() error {
		defer p.exit(i)
		return run(ctx, &p.results[i])
	})
}

// exit retires one producer; the decrement that reaches zero closes the
// buffer so consumers can drain and stop.
func (p *ProducerPool) exit(i int) {
	r := p.results[i]
	p.log.Debug("producer done", "producer", i, "enumerated", r.Enumerated, "failed", r.Failed)
	if p.active.Add(-1) == 0 {
		p.buf.Close()
		p.log.Debug("all producers done; buffer closed")
	}
}

// lead pages through a query in cursor order and distributes each page
// across the producers.
func (p *ProducerPool) lead(ctx context.Context, q gmail.Query, producers int, pages chan<- []gmail.MessageID) error {
	return p.enumerate(ctx, q, "query", &p.paged, func(ctx context.Context, ids []gmail.MessageID, _ *Summary) bool {
		size := (len(ids) + producers - 1) / producers
		for _, part := range chunk(ids, size) {
			select {
			case pages <- part:
			case <-ctx.Done():
				return false
			}
		}
		return true
	})
}

// enumerate lists q page by page and hands every page to emit. A page that
// still fails after retries ends the listing: without it there is no cursor
// for the next page. unit names the first page in failure records.
func (p *ProducerPool) enumerate(
	ctx context.Context,
	q gmail.Query,
	unit string,
	sum *Summary,
	emit func(ctx context.Context, ids []gmail.MessageID, sum *Summary) bool,
) error {
	token := ""
	for {
		if p.env.stopped(ctx) {
			return nil
		}
		var page gmail.ListPage
		err := p.env.call(ctx, func(ctx context.Context) error {
			if err := p.env.wait(ctx, "rate limit list"); err != nil {
				return err
			}
			var listErr error
			page, listErr = p.env.Client.List(ctx, q, token, p.env.pageSize())
			return listErr
		})
		if err != nil {
			if IsFatal(err) {
				return err
			}
			if p.env.stopped(ctx) {
				return nil
			}
			id := unit
			if token != "" {
				id = "page:" + token
			}
			p.log.Warn("list page failed", "unit", id, "error", err)
			sum.fail(id, StageProduce, err)
			return nil
		}
		p.log.Debug("listed page", "unit", unit, "ids", len(page.IDs), "next", page.NextPageToken != "")
		if !emit(ctx, page.IDs, sum) {
			return nil
		}
		if page.NextPageToken == "" {
			return nil
		}
		token = page.NextPageToken
	}
}

// verifyAndPush checks that every ID of one page exists before inserting
// the page. IDs the mailbox does not know fail on their own; any other error
// fails the attempt, and once retries run out the whole page is recorded as
// failed.
func (p *ProducerPool) verifyAndPush(ctx context.Context, page []gmail.MessageID, sum *Summary) error {
	missing := map[gmail.MessageID]error{}
	verified := map[gmail.MessageID]bool{}
	err := p.env.call(ctx, func(ctx context.Context) error {
		for _, id := range page {
			if verified[id] || missing[id] != nil {
				continue
			}
			if err := p.env.wait(ctx, "rate limit verify"); err != nil {
				return err
			}
			if _, err := p.env.Client.GetMetadata(ctx, id); err != nil {
				if errors.Is(err, gmail.ErrNotFound) {
					missing[id] = fmt.Errorf("message %s: %w", id, err)
					continue
				}
				return fmt.Errorf("verify %s: %w", id, err)
			}
			verified[id] = true
		}
		return nil
	})
	if err != nil {
		if IsFatal(err) {
			return err
		}
		if p.env.stopped(ctx) {
			return nil
		}
		p.log.Warn("verify page failed", "first", page[0], "ids", len(page), "error", err)
		for _, id := range page {
			if e := missing[id]; e != nil {
				sum.fail(string(id), StageProduce, e)
				continue
			}
			sum.fail(string(id), StageProduce, err)
		}
		return nil
	}

	kept := make([]gmail.MessageID, 0, len(page))
	for _, id := range page {
		if e := missing[id]; e != nil {
			p.log.Warn("message not found", "id", id)
			sum.fail(string(id), StageProduce, e)
			continue
		}
		kept = append(kept, id)
	}
	p.pushAll(ctx, kept, sum)
	return nil
}

// pushAll inserts ids not seen before in this run. It reports false once the
// run is aborting and the producer should stop.
func (p *ProducerPool) pushAll(ctx context.Context, ids []gmail.MessageID, sum *Summary) bool {
	for _, id := range ids {
		if p.env.stopped(ctx) {
			return false
		}
		if !p.seen.add(id) {
			continue
		}
		if err := p.buf.Push(id); err != nil {
			return false
		}
		sum.Enumerated++
	}
	return true
}

// resolveLabels maps label names to IDs with a single ListLabels call.
// Failures are recorded in the setup summary.
func (p *ProducerPool) resolveLabels(ctx context.Context, names []string) []labelRef {
	var (
		byName map[string]gmail.LabelID
		byID   map[gmail.LabelID]string
	)
	err := p.env.call(ctx, func(ctx context.Context) error {
		if err := p.env.wait(ctx, "rate limit labels"); err != nil {
			return err
		}
		var listErr error
		byName, byID, listErr = p.env.Client.ListLabels(ctx)
		return listErr
	})

	seen := map[string]bool{}
	var out []labelRef
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if err != nil {
			p.setup.fail("label:"+name, StageResolve, fmt.Errorf("list labels: %w", err))
			continue
		}
		if id, ok := byName[name]; ok {
			out = append(out, labelRef{name: name, id: id})
			continue
		}
		if _, ok := byID[gmail.LabelID(name)]; ok {
			out = append(out, labelRef{name: name, id: gmail.LabelID(name)})
			continue
		}
		p.log.Warn("unknown label", "label", name)
		p.setup.fail("label:"+name, StageResolve, fmt.Errorf("%w %q", ErrUnknownLabel, name))
	}
	return out
}

type seenSet struct {
	mu  sync.Mutex
	ids map[gmail.MessageID]struct{}
}

// add reports whether id was new.
func (s *seenSet) add(id gmail.MessageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[gmail.MessageID]struct{})
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}
