package outbox

import (
	"context"
	"errors"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay moves committed outbox events to a Publisher. Delivery is at least
// once: events are marked sent only after Publish succeeded.
type Relay struct {
	store     repository.Store
	publisher Publisher
	interval  time.Duration
	batchSize uint64
	logger    *zap.Logger
	now       func() time.Time
}

// NewRelay creates a relay polling every cfg.PollInterval
func NewRelay(store repository.Store, publisher Publisher, cfg config.OutboxConfig, logger *zap.Logger) *Relay {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: uint64(batchSize),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run flushes until ctx is cancelled. A full batch is followed by another
// flush right away instead of waiting for the next tick.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Outbox relay started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return
		case <-ticker.C:
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						r.logger.Error("Failed to relay outbox events", zap.Error(err))
					}
					break
				}
				if uint64(n) < r.batchSize {
					break
				}
			}
		}
	}
}

// Flush publishes one batch of pending events and returns how many were sent
func (r *Relay) Flush(ctx context.Context) (int, error) {
	sent := 0
	err := r.store.WithTx(ctx, func(repos repository.Repositories) error {
		events, err := repos.Outbox.FetchPending(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		if err := r.publisher.Publish(ctx, events); err != nil {
			return err
		}
		if err := repos.Outbox.MarkSent(ctx, eventIDs(events), r.now()); err != nil {
			return err
		}
		sent = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if sent > 0 {
		r.logger.Debug("Relayed outbox events", zap.Int("count", sent))
	}
	return sent, nil
}

func eventIDs(events []*domain.Event) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
