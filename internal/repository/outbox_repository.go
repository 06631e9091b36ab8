package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// OutboxRepository queues domain events in the same transaction as the state change
type OutboxRepository interface {
	Insert(ctx context.Context, events ...*domain.Event) error
	FetchPending(ctx context.Context, limit uint64) ([]*domain.Event, error)
	MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type outboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new instance of OutboxRepository
func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Insert(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	insert := psql.Insert("outbox").Columns("id", "event_type", "aggregate_id", "payload", "created_at")
	for _, e := range events {
		insert = insert.Values(e.ID, e.Type, e.AggregateID, string(e.Payload), e.CreatedAt)
	}
	if _, err := exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("failed to insert outbox events: %w", err)
	}
	return nil
}

// FetchPending locks up to limit unsent events, skipping rows another relay holds.
// Call it inside a transaction and MarkSent before committing.
func (r *outboxRepository) FetchPending(ctx context.Context, limit uint64) ([]*domain.Event, error) {
	rows, err := query(ctx, r.db, psql.Select("id", "event_type", "aggregate_id", "payload", "created_at").
		From("outbox").
		Where(sq.Eq{"sent_at": nil}).
		OrderBy("created_at", "id").
		Limit(limit).
		Suffix("FOR UPDATE SKIP LOCKED"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.AggregateID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := exec(ctx, r.db, psql.Update("outbox").
		Set("sent_at", sql.NullTime{Time: at, Valid: true}).
		Where(sq.Eq{"id": ids}))
	if err != nil {
		return fmt.Errorf("failed to mark outbox events sent: %w", err)
	}
	return nil
}
