package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentResult is what a charge or refund produced
type PaymentResult struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transaction_id"`
	Amount        Money     `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

type PaymentKind string

const (
	PaymentKindCharge PaymentKind = "charge"
	PaymentKindRefund PaymentKind = "refund"
)

// PaymentTransaction is the persisted record of a PaymentResult
type PaymentTransaction struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Kind          PaymentKind
	Method        string
	TransactionID string
	Amount        Money
	Success       bool
	CreatedAt     time.Time
}

// NewPaymentTransaction records result against orderID
func NewPaymentTransaction(orderID uuid.UUID, kind PaymentKind, method string, result *PaymentResult) *PaymentTransaction {
	return &PaymentTransaction{
		ID:            uuid.New(),
		OrderID:       orderID,
		Kind:          kind,
		Method:        method,
		TransactionID: result.TransactionID,
		Amount:        result.Amount,
		Success:       result.Success,
		CreatedAt:     result.Timestamp,
	}
}

// RefundedTotal sums successful refunds in currency
func RefundedTotal(transactions []*PaymentTransaction, currency string) (Money, error) {
	total := Zero(currency)
	for _, tx := range transactions {
		if tx.Kind != PaymentKindRefund || !tx.Success {
			continue
		}
		var err error
		total, err = total.Add(tx.Amount)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// ChargeAttempts counts the charges recorded in transactions, declined ones included
func ChargeAttempts(transactions []*PaymentTransaction) int {
	n := 0
	for _, tx := range transactions {
		if tx.Kind == PaymentKindCharge {
			n++
		}
	}
	return n
}
