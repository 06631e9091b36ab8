package repository

import (
	"context"
	"fmt"

	"storefront/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRepository stores every charge and refund attempt
type PaymentRepository interface {
	Create(ctx context.Context, tx *domain.PaymentTransaction) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.PaymentTransaction, error)
}

type paymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new instance of PaymentRepository
func NewPaymentRepository(db DBTX) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	_, err := exec(ctx, r.db, psql.Insert("payment_transactions").
		Columns("id", "order_id", "kind", "method", "transaction_id", "amount", "currency", "success", "created_at").
		Values(tx.ID, tx.OrderID, string(tx.Kind), tx.Method, tx.TransactionID,
			tx.Amount.Amount(), tx.Amount.Currency(), tx.Success, tx.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record payment transaction: %w", err)
	}
	return nil
}

// FindByOrderID lists the order's transactions in the order they happened
func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.PaymentTransaction, error) {
	rows, err := query(ctx, r.db, psql.Select("id", "order_id", "kind", "method", "transaction_id", "amount", "currency", "success", "created_at").
		From("payment_transactions").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at"))
	if err != nil {
		return nil, fmt.Errorf("failed to load payment transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.PaymentTransaction
	for rows.Next() {
		var (
			tx       domain.PaymentTransaction
			kind     string
			amount   decimal.Decimal
			currency string
		)
		if err := rows.Scan(&tx.ID, &tx.OrderID, &kind, &tx.Method, &tx.TransactionID, &amount, &currency, &tx.Success, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		tx.Kind = domain.PaymentKind(kind)
		if tx.Amount, err = domain.NewMoney(amount, currency); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment transactions: %w", err)
	}
	return txs, nil
}
