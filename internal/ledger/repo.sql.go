package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx alike. Passing a pgx.Tx
// pins every Repository read to that transaction's snapshot.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed ledger reads.
type Repository struct {
	q Querier
}

// NewRepository constructs a repository over the given querier.
func NewRepository(q Querier) *Repository {
	return &Repository{q: q}
}

// Aggregate returns sum(final_total) and count over transactions matching the
// window and filter. Monetary sums travel as text to keep them exact.
func (r *Repository) Aggregate(ctx context.Context, operatorID string, w Window, f Filter) (Aggregate, error) {
	query := `SELECT COALESCE(SUM(final_total), 0)::text, COUNT(*) FROM transactions
WHERE operator_id = $1 AND created_at >= $2 AND created_at <= $3`
	args := []any{operatorID, w.From, w.To}
	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.PaymentMethod != nil {
		args = append(args, *f.PaymentMethod)
		query += fmt.Sprintf(" AND payment_method = $%d", len(args))
	}

	var sumText string
	var agg Aggregate
	if err := r.q.QueryRow(ctx, query, args...).Scan(&sumText, &agg.Count); err != nil {
		return Aggregate{}, fmt.Errorf("ledger: aggregate: %w", err)
	}
	sum, err := decimal.NewFromString(sumText)
	if err != nil {
		return Aggregate{}, fmt.Errorf("ledger: aggregate sum %q: %w", sumText, err)
	}
	agg.Sum = sum
	return agg, nil
}

// DiscountTotals sums discount, voucher, promo and tax over completed sales in window.
func (r *Repository) DiscountTotals(ctx context.Context, operatorID string, w Window) (DiscountTotals, error) {
	const query = `SELECT COALESCE(SUM(discount), 0)::text,
	COALESCE(SUM(voucher_discount), 0)::text,
	COALESCE(SUM(promo_discount), 0)::text,
	COALESCE(SUM(tax), 0)::text
FROM transactions
WHERE operator_id = $1 AND created_at >= $2 AND created_at <= $3 AND status = $4`

	var disc, voucher, promo, tax string
	err := r.q.QueryRow(ctx, query, operatorID, w.From, w.To, StatusCompleted).Scan(&disc, &voucher, &promo, &tax)
	if err != nil {
		return DiscountTotals{}, fmt.Errorf("ledger: discount totals: %w", err)
	}
	var totals DiscountTotals
	if totals.Discount, err = decimal.NewFromString(disc); err != nil {
		return DiscountTotals{}, fmt.Errorf("ledger: discount sum: %w", err)
	}
	if totals.VoucherDiscount, err = decimal.NewFromString(voucher); err != nil {
		return DiscountTotals{}, fmt.Errorf("ledger: voucher sum: %w", err)
	}
	if totals.PromoDiscount, err = decimal.NewFromString(promo); err != nil {
		return DiscountTotals{}, fmt.Errorf("ledger: promo sum: %w", err)
	}
	if totals.Tax, err = decimal.NewFromString(tax); err != nil {
		return DiscountTotals{}, fmt.Errorf("ledger: tax sum: %w", err)
	}
	return totals, nil
}

// PointsTotals sums loyalty points earned and redeemed over completed sales in window.
func (r *Repository) PointsTotals(ctx context.Context, operatorID string, w Window) (PointsTotals, error) {
	const query = `SELECT COALESCE(SUM(points_earned), 0), COALESCE(SUM(points_used), 0)
FROM transactions
WHERE operator_id = $1 AND created_at >= $2 AND created_at <= $3 AND status = $4`

	var totals PointsTotals
	err := r.q.QueryRow(ctx, query, operatorID, w.From, w.To, StatusCompleted).Scan(&totals.Earned, &totals.Used)
	if err != nil {
		return PointsTotals{}, fmt.Errorf("ledger: points totals: %w", err)
	}
	return totals, nil
}

// SumLineItemQuantity sums item quantities across transactions in the given
// status inside the window.
func (r *Repository) SumLineItemQuantity(ctx context.Context, operatorID string, w Window, status Status) (int64, error) {
	const query = `SELECT COALESCE(SUM(ti.quantity), 0)
FROM transaction_items ti
JOIN transactions t ON t.id = ti.transaction_id
WHERE t.operator_id = $1 AND t.created_at >= $2 AND t.created_at <= $3 AND t.status = $4`

	var qty int64
	err := r.q.QueryRow(ctx, query, operatorID, w.From, w.To, status).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("ledger: sum line item quantity: %w", err)
	}
	return qty, nil
}

// CountPending counts unsettled transactions owned by the operator. The count
// is deliberately unwindowed: any pending sale blocks a shift close.
func (r *Repository) CountPending(ctx context.Context, operatorID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM transactions WHERE operator_id = $1 AND status = $2`

	var count int64
	if err := r.q.QueryRow(ctx, query, operatorID, StatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("ledger: count pending: %w", err)
	}
	return count, nil
}
