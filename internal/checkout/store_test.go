package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory repository.Store. WithTx works on a copy of the
// state that replaces the original only when fn succeeds.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	commitErr error
}

type cartRow struct {
	id        uuid.UUID
	userID    uuid.UUID
	items     []cartItemRow
	createdAt time.Time
	updatedAt time.Time
}

type cartItemRow struct {
	productID uuid.UUID
	quantity  int
}

type memState struct {
	products map[uuid.UUID]domain.Product
	carts    map[uuid.UUID]cartRow
	orders   map[uuid.UUID]domain.Order
	history  map[uuid.UUID][]domain.OrderHistoryEntry
	payments []domain.PaymentTransaction
	outbox   []domain.Event
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		products: map[uuid.UUID]domain.Product{},
		carts:    map[uuid.UUID]cartRow{},
		orders:   map[uuid.UUID]domain.Order{},
		history:  map[uuid.UUID][]domain.OrderHistoryEntry{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		products: make(map[uuid.UUID]domain.Product, len(s.products)),
		carts:    make(map[uuid.UUID]cartRow, len(s.carts)),
		orders:   make(map[uuid.UUID]domain.Order, len(s.orders)),
		history:  make(map[uuid.UUID][]domain.OrderHistoryEntry, len(s.history)),
		payments: append([]domain.PaymentTransaction(nil), s.payments...),
		outbox:   append([]domain.Event(nil), s.outbox...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		v.items = append([]cartItemRow(nil), v.items...)
		c.carts[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.history {
		c.history[k] = append([]domain.OrderHistoryEntry(nil), v...)
	}
	return c
}

func (s *memStore) Repositories() repository.Repositories {
	return s.state.repositories()
}

func (s *memStore) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(tx.repositories()); err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	s.state = tx
	return nil
}

func (s *memState) repositories() repository.Repositories {
	return repository.Repositories{
		Products: memProducts{s},
		Carts:    memCarts{s},
		Orders:   memOrders{s},
		Payments: memPayments{s},
		Outbox:   memOutbox{s},
	}
}

// seedProduct stores a product and returns its id
func (s *memStore) seedProduct(name, price string, stock int) uuid.UUID {
	amount, err := domain.ParseMoney(price, "USD")
	if err != nil {
		panic(err)
	}
	id := uuid.New()
	s.state.products[id] = domain.Product{ID: id, Name: name, Price: amount, Stock: stock, CreatedAt: time.Now()}
	return id
}

func (s *memStore) stock(id uuid.UUID) int {
	return s.state.products[id].Stock
}

func (s *memStore) eventTypes() []string {
	types := make([]string, 0, len(s.state.outbox))
	for _, e := range s.state.outbox {
		types = append(types, e.Type)
	}
	return types
}

type memProducts struct{ s *memState }

func (r memProducts) Create(ctx context.Context, product *domain.Product) error {
	r.s.products[product.ID] = *product
	return nil
}

func (r memProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (r memProducts) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	products := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			products[id] = &p
		}
	}
	return products, nil
}

func (r memProducts) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	return r.FindByIDs(ctx, ids)
}

func (r memProducts) Update(ctx context.Context, product *domain.Product) error {
	if _, ok := r.s.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	if product.Stock < 0 {
		return domain.ErrNegativeStock
	}
	r.s.products[product.ID] = *product
	return nil
}

func (r memProducts) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	p, ok := r.s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock < quantity {
		return &domain.InsufficientStockError{ProductID: id, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	r.s.products[id] = p
	return nil
}

func (r memProducts) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	p, ok := r.s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	r.s.products[id] = p
	return nil
}

type memCarts struct{ s *memState }

func (r memCarts) restore(row cartRow) *domain.Cart {
	items := make([]*domain.CartItem, 0, len(row.items))
	for _, item := range row.items {
		p := r.s.products[item.productID]
		items = append(items, &domain.CartItem{Product: &p, Quantity: item.quantity})
	}
	return domain.RestoreCart(row.id, row.userID, items, row.createdAt, row.updatedAt)
}

func (r memCarts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	for _, row := range r.s.carts {
		if row.id == id {
			return r.restore(row), nil
		}
	}
	return nil, domain.ErrCartNotFound
}

func (r memCarts) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	row, ok := r.s.carts[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return r.restore(row), nil
}

func (r memCarts) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return r.FindByUserID(ctx, userID)
}

func (r memCarts) FindOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	if _, ok := r.s.carts[userID]; !ok {
		cart := domain.NewCart(userID)
		r.s.carts[userID] = cartRow{id: cart.ID, userID: userID, createdAt: cart.CreatedAt, updatedAt: cart.UpdatedAt}
	}
	return r.FindByUserID(ctx, userID)
}

func (r memCarts) Save(ctx context.Context, cart *domain.Cart) error {
	row := cartRow{id: cart.ID, userID: cart.UserID, createdAt: cart.CreatedAt, updatedAt: cart.UpdatedAt}
	for _, item := range cart.Items() {
		row.items = append(row.items, cartItemRow{productID: item.Product.ID, quantity: item.Quantity})
	}
	r.s.carts[cart.UserID] = row
	return nil
}

func (r memCarts) Delete(ctx context.Context, cartID uuid.UUID) error {
	for userID, row := range r.s.carts {
		if row.id == cartID {
			delete(r.s.carts, userID)
			return nil
		}
	}
	return domain.ErrCartNotFound
}

type memOrders struct{ s *memState }

func (r memOrders) load(order domain.Order) *domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	for i := range order.Items {
		order.Items[i].Product = nil
	}
	return &order
}

func (r memOrders) appendHistory(order *domain.Order, comment string) {
	r.s.history[order.ID] = append(r.s.history[order.ID], domain.OrderHistoryEntry{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    order.Status(),
		Comment:   comment,
		CreatedAt: order.UpdatedAt,
	})
}

func (r memOrders) Create(ctx context.Context, order *domain.Order) error {
	if order.IdempotencyKey != "" {
		if _, err := r.FindByIdempotencyKey(ctx, order.UserID, order.IdempotencyKey); err == nil {
			return repository.ErrDuplicateIdempotencyKey
		}
	}
	r.s.orders[order.ID] = *r.load(*order)
	r.appendHistory(order, "order created")
	return nil
}

func (r memOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return r.load(order), nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memOrders) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset uint64) ([]*domain.Order, error) {
	return r.page(func(o *domain.Order) bool { return o.UserID == userID }, limit, offset), nil
}

func (r memOrders) List(ctx context.Context, limit, offset uint64) ([]*domain.Order, error) {
	return r.page(func(*domain.Order) bool { return true }, limit, offset), nil
}

func (r memOrders) page(match func(*domain.Order) bool, limit, offset uint64) []*domain.Order {
	var orders []*domain.Order
	for _, order := range r.s.orders {
		if match(&order) {
			orders = append(orders, r.load(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if offset >= uint64(len(orders)) {
		return []*domain.Order{}
	}
	orders = orders[offset:]
	if limit < uint64(len(orders)) {
		orders = orders[:limit]
	}
	return orders
}

func (r memOrders) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error) {
	for _, order := range r.s.orders {
		if order.UserID == userID && order.IdempotencyKey == key {
			return r.load(order), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r memOrders) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus, comment string) error {
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Status() != from {
		return fmt.Errorf("%w: order %s is no longer %s", domain.ErrInvalidOrderState, order.ID, from)
	}
	r.s.orders[order.ID] = *r.load(*order)
	r.appendHistory(order, comment)
	return nil
}

func (r memOrders) History(ctx context.Context, orderID uuid.UUID) ([]domain.OrderHistoryEntry, error) {
	return append([]domain.OrderHistoryEntry{}, r.s.history[orderID]...), nil
}

type memPayments struct{ s *memState }

func (r memPayments) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	r.s.payments = append(r.s.payments, *tx)
	return nil
}

func (r memPayments) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.PaymentTransaction, error) {
	txs := []*domain.PaymentTransaction{}
	for i := range r.s.payments {
		if r.s.payments[i].OrderID == orderID {
			tx := r.s.payments[i]
			txs = append(txs, &tx)
		}
	}
	return txs, nil
}

type memOutbox struct{ s *memState }

func (r memOutbox) Insert(ctx context.Context, events ...*domain.Event) error {
	for _, e := range events {
		r.s.outbox = append(r.s.outbox, *e)
	}
	return nil
}

func (r memOutbox) FetchPending(ctx context.Context, limit uint64) ([]*domain.Event, error) {
	var events []*domain.Event
	for i := range r.s.outbox {
		if r.s.outbox[i].SentAt == nil && uint64(len(events)) < limit {
			e := r.s.outbox[i]
			events = append(events, &e)
		}
	}
	return events, nil
}

func (r memOutbox) MarkSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		for i := range r.s.outbox {
			if r.s.outbox[i].ID == id {
				r.s.outbox[i].SentAt = &at
			}
		}
	}
	return nil
}
