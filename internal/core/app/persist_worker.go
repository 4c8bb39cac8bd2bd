package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"yangkit/internal/data/artifact"
	"yangkit/internal/data/queue"
	"yangkit/internal/data/store"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/observability"
)

const (
	persistBatchSize     = 32
	persistFlushInterval = 100 * time.Millisecond
)

// persistJob carries exactly one of text or ast.
type persistJob struct {
	text *source.TextSource
	ast  *parser.ASTSource
}

// persister writes fetched text and parsed sources off the resolution path.
// A full queue drops writes; the source is simply fetched again next run.
type persister struct {
	store     *store.SQLiteSourceStore
	artifacts *artifact.DiskCache
	queue     *queue.MemoryQueue[persistJob]
	done      chan struct{}
}

func newPersister(s *store.SQLiteSourceStore, c *artifact.DiskCache, capacity int) *persister {
	return &persister{
		store:     s,
		artifacts: c,
		queue:     queue.NewMemoryQueue[persistJob](capacity),
		done:      make(chan struct{}),
	}
}

func (p *persister) start() {
	go p.run()
}

func (p *persister) enqueue(job persistJob) {
	if p == nil {
		return
	}
	if p.queue.Enqueue(job) == queue.EnqueueDropped {
		observability.PersistWritesTotal.WithLabelValues(job.target(), "dropped").Inc()
		slog.Debug("persist queue full, write dropped", "target", job.target())
	}
	observability.PersistQueueDepth.Set(float64(p.queue.Len()))
}

func (p *persister) run() {
	defer close(p.done)
	ctx := context.Background()
	for {
		batch, err := p.queue.DequeueBatch(ctx, persistBatchSize, persistFlushInterval)
		if len(batch) > 0 {
			started := time.Now()
			p.apply(ctx, batch)
			observability.PersistFlushLatencySeconds.Observe(time.Since(started).Seconds())
			observability.PersistQueueDepth.Set(float64(p.queue.Len()))
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			slog.Warn("persist queue dequeue failed", "error", err)
		}
	}
}

func (p *persister) apply(ctx context.Context, batch []persistJob) {
	for _, job := range batch {
		var err error
		switch {
		case job.text != nil && p.store != nil:
			err = p.store.Put(ctx, job.text)
		case job.ast != nil && p.artifacts != nil:
			err = p.artifacts.Put(job.ast)
		default:
			continue
		}
		if err != nil {
			observability.PersistWritesTotal.WithLabelValues(job.target(), "failure").Inc()
			slog.Warn("persist write failed", "target", job.target(), "source", job.identifier().String(), "error", err)
			continue
		}
		observability.PersistWritesTotal.WithLabelValues(job.target(), "success").Inc()
	}
}

// close stops accepting writes and waits for the queue to drain.
func (p *persister) close(ctx context.Context) error {
	_ = p.queue.Close()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j persistJob) target() string {
	if j.text != nil {
		return "store"
	}
	return "artifact"
}

func (j persistJob) identifier() source.SourceIdentifier {
	if j.text != nil {
		return j.text.ID
	}
	return j.ast.ID
}
