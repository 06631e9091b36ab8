package repository

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	a := seedProduct(t, "3.50", 10)
	b := seedProduct(t, "1.25", 10)
	userID := uuid.New()

	_, err := store.Repositories().Carts.FindByUserID(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	err = store.WithTx(ctx, func(repos Repositories) error {
		cart, err := repos.Carts.FindOrCreateForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := cart.AddItem(a, 2); err != nil {
			return err
		}
		if err := cart.AddItem(b, 4); err != nil {
			return err
		}
		return repos.Carts.Save(ctx, cart)
	})
	require.NoError(t, err)

	cart, err := store.Repositories().Carts.FindByUserID(ctx, userID)
	require.NoError(t, err)
	items := cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].Product.ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, b.ID, items[1].Product.ID)

	total, err := cart.Total()
	require.NoError(t, err)
	assert.Equal(t, "USD 12.00", total.String())

	byID, err := store.Repositories().Carts.FindByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, userID, byID.UserID)
	assert.Len(t, byID.Items(), 2)
}

func TestCartRepository_FindOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := NewStore(testDB).Repositories()
	userID := uuid.New()

	first, err := repos.Carts.FindOrCreateForUpdate(ctx, userID)
	require.NoError(t, err)
	second, err := repos.Carts.FindOrCreateForUpdate(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsEmpty())
}

func TestCartRepository_RemoveItemsAndDelete(t *testing.T) {
	ctx := context.Background()
	repos := NewStore(testDB).Repositories()
	p := seedProduct(t, "2", 5)
	userID := uuid.New()

	cart, err := repos.Carts.FindOrCreateForUpdate(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, cart.AddItem(p, 1))
	require.NoError(t, repos.Carts.Save(ctx, cart))

	cart.RemoveItem(p.ID)
	require.NoError(t, repos.Carts.Save(ctx, cart))
	reloaded, err := repos.Carts.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsEmpty())

	require.NoError(t, repos.Carts.Delete(ctx, cart.ID))
	assert.ErrorIs(t, repos.Carts.Delete(ctx, cart.ID), domain.ErrCartNotFound)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	userID := uuid.New()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(repos Repositories) error {
		if _, err := repos.Carts.FindOrCreateForUpdate(ctx, userID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Repositories().Carts.FindByUserID(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}
