package checkout

import (
	"context"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// GetCart returns the user's cart. A user without a cart gets an empty,
// unsaved one.
func (s *checkoutService) GetCart(ctx context.Context, user *domain.User) (*domain.Cart, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}

	cart, err := s.store.Repositories().Carts.FindByUserID(ctx, user.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.NewCart(user.ID), nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.users.ValidateUserCartAccess(user, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddToCart merges quantity of the product into the user's cart, creating the cart on first use
func (s *checkoutService) AddToCart(ctx context.Context, user *domain.User, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}

	var cart *domain.Cart
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		cart, err = repos.Carts.FindOrCreateForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := s.users.ValidateUserCartAccess(user, cart); err != nil {
			return err
		}

		products, err := refreshCart(ctx, repos, cart, productID)
		if err != nil {
			return err
		}
		if err := cart.AddItem(products[productID], quantity); err != nil {
			return err
		}
		return repos.Carts.Save(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateCartItem sets the quantity of a product already in the cart
func (s *checkoutService) UpdateCartItem(ctx context.Context, user *domain.User, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	return s.mutateCart(ctx, user, func(repos repository.Repositories, cart *domain.Cart) error {
		if _, err := refreshCart(ctx, repos, cart); err != nil {
			return err
		}
		return cart.UpdateItemQuantity(productID, quantity)
	})
}

// RemoveCartItem drops a product from the cart; absent products are ignored
func (s *checkoutService) RemoveCartItem(ctx context.Context, user *domain.User, productID uuid.UUID) (*domain.Cart, error) {
	return s.mutateCart(ctx, user, func(_ repository.Repositories, cart *domain.Cart) error {
		cart.RemoveItem(productID)
		return nil
	})
}

// ClearCart empties the user's cart
func (s *checkoutService) ClearCart(ctx context.Context, user *domain.User) error {
	_, err := s.mutateCart(ctx, user, func(_ repository.Repositories, cart *domain.Cart) error {
		cart.Clear()
		return nil
	})
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil
	}
	return err
}

// mutateCart applies fn to the locked cart and saves it
func (s *checkoutService) mutateCart(ctx context.Context, user *domain.User, fn func(repository.Repositories, *domain.Cart) error) (*domain.Cart, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}

	var cart *domain.Cart
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		cart, err = repos.Carts.FindByUserIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := s.users.ValidateUserCartAccess(user, cart); err != nil {
			return err
		}
		if err := fn(repos, cart); err != nil {
			return err
		}
		return repos.Carts.Save(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// refreshCart reloads the cart's products, plus any extra ones, so stock
// checks run against current counts
func refreshCart(ctx context.Context, repos repository.Repositories, cart *domain.Cart, extra ...uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	products, err := repos.Products.FindByIDs(ctx, append(cart.ProductIDs(), extra...))
	if err != nil {
		return nil, err
	}
	for _, id := range extra {
		if _, ok := products[id]; !ok {
			return nil, domain.ErrProductNotFound
		}
	}
	if err := cart.RefreshProducts(products); err != nil {
		return nil, err
	}
	return products, nil
}
