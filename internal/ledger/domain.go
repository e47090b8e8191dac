// Package ledger exposes a read-only view over completed and in-flight sale
// transactions. Shift reconciliation consumes it through the Reader contract;
// sales themselves are recorded elsewhere, at sale time.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates sale transaction states.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// PaymentMethod enumerates supported tender types.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCard         PaymentMethod = "CARD"
	PaymentQRIS         PaymentMethod = "QRIS"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Statuses returns all transaction statuses in reporting order.
func Statuses() []Status {
	return []Status{StatusCompleted, StatusPending, StatusCancelled, StatusRefunded}
}

// PaymentMethods returns all tender types in reporting order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentCash, PaymentCard, PaymentQRIS, PaymentBankTransfer}
}

// Transaction is the read-only sale view consumed by reconciliation.
type Transaction struct {
	ID              int64           `json:"id"`
	OperatorID      string          `json:"operator_id"`
	Status          Status          `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	FinalTotal      decimal.Decimal `json:"final_total"`
	Discount        decimal.Decimal `json:"discount"`
	VoucherDiscount decimal.Decimal `json:"voucher_discount"`
	PromoDiscount   decimal.Decimal `json:"promo_discount"`
	Tax             decimal.Decimal `json:"tax"`
	PointsEarned    int64           `json:"points_earned"`
	PointsUsed      int64           `json:"points_used"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Window bounds an aggregation interval, inclusive on both ends.
type Window struct {
	From time.Time
	To   time.Time
}

// Filter narrows an aggregate to a status and/or payment method.
type Filter struct {
	Status        *Status
	PaymentMethod *PaymentMethod
}

// Aggregate is the sum/count pair produced by ledger queries.
type Aggregate struct {
	Sum   decimal.Decimal
	Count int64
}

// DiscountTotals sums the discount dimensions of completed sales.
type DiscountTotals struct {
	Discount        decimal.Decimal `json:"discount"`
	VoucherDiscount decimal.Decimal `json:"voucher_discount"`
	PromoDiscount   decimal.Decimal `json:"promo_discount"`
	Tax             decimal.Decimal `json:"tax"`
}

// PointsTotals sums loyalty point movement of completed sales.
type PointsTotals struct {
	Earned int64 `json:"earned"`
	Used   int64 `json:"used"`
}

// Reader is the query contract shift reconciliation depends on. Implementations
// bound to a transaction give the caller snapshot-consistent reads across calls.
type Reader interface {
	Aggregate(ctx context.Context, operatorID string, w Window, f Filter) (Aggregate, error)
	DiscountTotals(ctx context.Context, operatorID string, w Window) (DiscountTotals, error)
	PointsTotals(ctx context.Context, operatorID string, w Window) (PointsTotals, error)
	SumLineItemQuantity(ctx context.Context, operatorID string, w Window, status Status) (int64, error)
	CountPending(ctx context.Context, operatorID string) (int64, error)
}

func statusFilter(s Status) Filter {
	return Filter{Status: &s}
}

// CompletedFilter matches completed sales across all payment methods.
func CompletedFilter() Filter {
	return statusFilter(StatusCompleted)
}

// CompletedByMethodFilter matches completed sales paid with the given method.
func CompletedByMethodFilter(m PaymentMethod) Filter {
	s := StatusCompleted
	return Filter{Status: &s, PaymentMethod: &m}
}

// StatusOnlyFilter matches transactions of any payment method in the given status.
func StatusOnlyFilter(s Status) Filter {
	return statusFilter(s)
}
