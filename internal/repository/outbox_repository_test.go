package repository

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_FetchAndMarkSent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	_, err := testDB.Exec("DELETE FROM outbox")
	require.NoError(t, err)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		e, err := domain.NewEvent(domain.EventOrderCreated, uuid.New(), map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, store.Repositories().Outbox.Insert(ctx, e))
		ids = append(ids, e.ID)
	}

	err = store.WithTx(ctx, func(repos Repositories) error {
		events, err := repos.Outbox.FetchPending(ctx, 2)
		if err != nil {
			return err
		}
		require.Len(t, events, 2)
		assert.Equal(t, ids[0], events[0].ID)
		assert.JSONEq(t, `{"n":0}`, string(events[0].Payload))

		// a concurrent relay skips the rows locked above
		err = store.WithTx(ctx, func(other Repositories) error {
			rest, err := other.Outbox.FetchPending(ctx, 10)
			require.Len(t, rest, 1)
			assert.Equal(t, ids[2], rest[0].ID)
			return err
		})
		if err != nil {
			return err
		}

		return repos.Outbox.MarkSent(ctx, []uuid.UUID{events[0].ID, events[1].ID}, time.Now().UTC())
	})
	require.NoError(t, err)

	pending, err := store.Repositories().Outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].ID)
}
