package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tessera/internal/consumers"
	"tessera/internal/models"
	"tessera/internal/search"
	"tessera/internal/store"
)

const (
	DefaultReindexInterval = 15 * time.Minute
	reindexPageSize        = 500
)

// ReindexJob periodically copies every card into the search index. It
// repairs the index after missed events or a fresh Elasticsearch volume.
type ReindexJob struct {
	uow      store.UnitOfWork
	index    consumers.CardIndex
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	running  sync.Mutex
}

func NewReindexJob(uow store.UnitOfWork, index consumers.CardIndex, interval time.Duration) *ReindexJob {
	if interval <= 0 {
		interval = DefaultReindexInterval
	}
	return &ReindexJob{
		uow:      uow,
		index:    index,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval.
func (j *ReindexJob) Start(ctx context.Context) {
	slog.Info("Starting card reindex job", "interval", j.interval)

	j.ticker = time.NewTicker(j.interval)

	go j.runOnce(ctx)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				go j.runOnce(ctx)
			case <-j.done:
				slog.Info("Card reindex job stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops the background job
func (j *ReindexJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

// runOnce skips the tick when the previous pass is still going.
func (j *ReindexJob) runOnce(ctx context.Context) {
	if !j.running.TryLock() {
		slog.Debug("Previous reindex pass still running, skipping")
		return
	}
	defer j.running.Unlock()

	start := time.Now()
	indexed, err := j.Reindex(ctx)
	if err != nil {
		slog.Error("Card reindex failed", "indexed", indexed, "error", err)
		return
	}
	slog.Info("Card reindex completed", "indexed", indexed, "elapsed", time.Since(start).String())
}

// Reindex pages through all cards and upserts each document. It returns
// the number of documents written.
func (j *ReindexJob) Reindex(ctx context.Context) (int, error) {
	indexed := 0
	for offset := 0; ; offset += reindexPageSize {
		var page []models.CardListItem
		err := j.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
			var err error
			page, err = st.Cards().List(ctx, models.CardFilter{Limit: reindexPageSize, Offset: offset})
			return err
		})
		if err != nil {
			return indexed, err
		}

		for _, item := range page {
			if err := j.index.IndexCard(ctx, search.DocumentFromItem(item)); err != nil {
				return indexed, err
			}
			indexed++
		}

		if len(page) < reindexPageSize {
			return indexed, nil
		}
	}
}
