package shift

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasira-pos/kasira-pos/internal/ledger"
)

// ============================================================================
// FAKE LEDGER
// ============================================================================

type fakeTransaction struct {
	ledger.Transaction
	ItemQuantity int64
}

type fakeLedger struct {
	txs []fakeTransaction

	aggregateErr error
}

func (f *fakeLedger) add(tx fakeTransaction) {
	f.txs = append(f.txs, tx)
}

func (f *fakeLedger) matches(tx fakeTransaction, operatorID string, w ledger.Window, fl ledger.Filter) bool {
	if tx.OperatorID != operatorID {
		return false
	}
	if tx.CreatedAt.Before(w.From) || tx.CreatedAt.After(w.To) {
		return false
	}
	if fl.Status != nil && tx.Status != *fl.Status {
		return false
	}
	if fl.PaymentMethod != nil && tx.PaymentMethod != *fl.PaymentMethod {
		return false
	}
	return true
}

func (f *fakeLedger) Aggregate(ctx context.Context, operatorID string, w ledger.Window, fl ledger.Filter) (ledger.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Aggregate{}, err
	}
	if f.aggregateErr != nil {
		return ledger.Aggregate{}, f.aggregateErr
	}
	agg := ledger.Aggregate{Sum: decimal.Zero}
	for _, tx := range f.txs {
		if f.matches(tx, operatorID, w, fl) {
			agg.Sum = agg.Sum.Add(tx.FinalTotal)
			agg.Count++
		}
	}
	return agg, nil
}

func (f *fakeLedger) DiscountTotals(ctx context.Context, operatorID string, w ledger.Window) (ledger.DiscountTotals, error) {
	totals := ledger.DiscountTotals{
		Discount:        decimal.Zero,
		VoucherDiscount: decimal.Zero,
		PromoDiscount:   decimal.Zero,
		Tax:             decimal.Zero,
	}
	for _, tx := range f.txs {
		if f.matches(tx, operatorID, w, ledger.CompletedFilter()) {
			totals.Discount = totals.Discount.Add(tx.Discount)
			totals.VoucherDiscount = totals.VoucherDiscount.Add(tx.VoucherDiscount)
			totals.PromoDiscount = totals.PromoDiscount.Add(tx.PromoDiscount)
			totals.Tax = totals.Tax.Add(tx.Tax)
		}
	}
	return totals, nil
}

func (f *fakeLedger) PointsTotals(ctx context.Context, operatorID string, w ledger.Window) (ledger.PointsTotals, error) {
	var totals ledger.PointsTotals
	for _, tx := range f.txs {
		if f.matches(tx, operatorID, w, ledger.CompletedFilter()) {
			totals.Earned += tx.PointsEarned
			totals.Used += tx.PointsUsed
		}
	}
	return totals, nil
}

func (f *fakeLedger) SumLineItemQuantity(ctx context.Context, operatorID string, w ledger.Window, status ledger.Status) (int64, error) {
	var qty int64
	for _, tx := range f.txs {
		if f.matches(tx, operatorID, w, ledger.StatusOnlyFilter(status)) {
			qty += tx.ItemQuantity
		}
	}
	return qty, nil
}

func (f *fakeLedger) CountPending(ctx context.Context, operatorID string) (int64, error) {
	var count int64
	for _, tx := range f.txs {
		if tx.OperatorID == operatorID && tx.Status == ledger.StatusPending {
			count++
		}
	}
	return count, nil
}

func completedSale(operator string, method ledger.PaymentMethod, total string, at time.Time) fakeTransaction {
	return fakeTransaction{
		Transaction: ledger.Transaction{
			OperatorID:    operator,
			Status:        ledger.StatusCompleted,
			PaymentMethod: method,
			FinalTotal:    decimal.RequireFromString(total),
			CreatedAt:     at,
		},
		ItemQuantity: 1,
	}
}

// ============================================================================
// ENGINE TESTS
// ============================================================================

var windowStart = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func testWindow() ledger.Window {
	return ledger.Window{From: windowStart, To: windowStart.Add(8 * time.Hour)}
}

func TestReconcileCashOnlyExpectedCash(t *testing.T) {
	led := &fakeLedger{}
	at := windowStart.Add(time.Hour)
	led.add(completedSale("op-1", ledger.PaymentCash, "20000", at))
	led.add(completedSale("op-1", ledger.PaymentCash, "15000", at.Add(time.Minute)))
	led.add(completedSale("op-1", ledger.PaymentCash, "15000", at.Add(2*time.Minute)))

	report, err := NewEngine(led).Reconcile(context.Background(), "op-1", testWindow(), decimal.RequireFromString("100000"))
	require.NoError(t, err)

	assert.True(t, report.ExpectedCash.Equal(decimal.RequireFromString("150000")),
		"expected cash %s", report.ExpectedCash)
	assert.True(t, report.GrossRevenue.Equal(decimal.RequireFromString("50000")),
		"gross revenue %s", report.GrossRevenue)
	assert.True(t, report.CashSales.Equal(decimal.RequireFromString("50000")))
}

func TestReconcileGrossRevenueNotConflatedWithExpectedCash(t *testing.T) {
	led := &fakeLedger{}
	at := windowStart.Add(time.Hour)
	led.add(completedSale("op-1", ledger.PaymentCash, "20000", at))
	led.add(completedSale("op-1", ledger.PaymentCash, "15000", at))
	led.add(completedSale("op-1", ledger.PaymentCash, "15000", at))
	led.add(completedSale("op-1", ledger.PaymentCard, "20000", at))

	report, err := NewEngine(led).Reconcile(context.Background(), "op-1", testWindow(), decimal.RequireFromString("100000"))
	require.NoError(t, err)

	// CARD raises gross revenue but leaves cash expectation untouched.
	assert.True(t, report.GrossRevenue.Equal(decimal.RequireFromString("70000")),
		"gross revenue %s", report.GrossRevenue)
	assert.True(t, report.ExpectedCash.Equal(decimal.RequireFromString("150000")),
		"expected cash %s", report.ExpectedCash)
}

func TestReconcilePaymentBreakdownSumsToGrossRevenue(t *testing.T) {
	led := &fakeLedger{}
	at := windowStart.Add(time.Hour)
	led.add(completedSale("op-1", ledger.PaymentCash, "12500.50", at))
	led.add(completedSale("op-1", ledger.PaymentCard, "9999.99", at))
	led.add(completedSale("op-1", ledger.PaymentQRIS, "300.01", at))
	led.add(completedSale("op-1", ledger.PaymentBankTransfer, "45000", at))

	report, err := NewEngine(led).Reconcile(context.Background(), "op-1", testWindow(), decimal.Zero)
	require.NoError(t, err)

	require.Len(t, report.PaymentBreakdown, 4)
	sum := decimal.Zero
	for _, line := range report.PaymentBreakdown {
		sum = sum.Add(line.Total)
	}
	assert.True(t, sum.Equal(report.GrossRevenue),
		"breakdown sum %s vs gross %s", sum, report.GrossRevenue)
}

func TestReconcileExcludesOutOfWindowAndNonCompleted(t *testing.T) {
	led := &fakeLedger{}
	at := windowStart.Add(time.Hour)
	led.add(completedSale("op-1", ledger.PaymentCash, "10000", at))
	led.add(completedSale("op-1", ledger.PaymentCash, "99999", windowStart.Add(-time.Hour)))
	led.add(completedSale("op-2", ledger.PaymentCash, "77777", at))

	refunded := completedSale("op-1", ledger.PaymentCash, "5000", at)
	refunded.Status = ledger.StatusRefunded
	led.add(refunded)

	report, err := NewEngine(led).Reconcile(context.Background(), "op-1", testWindow(), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, report.GrossRevenue.Equal(decimal.RequireFromString("10000")),
		"gross revenue %s", report.GrossRevenue)

	counts := make(map[ledger.Status]int64)
	for _, sc := range report.StatusCounts {
		counts[sc.Status] = sc.Count
	}
	assert.Equal(t, int64(1), counts[ledger.StatusCompleted])
	assert.Equal(t, int64(1), counts[ledger.StatusRefunded])
	assert.Equal(t, int64(0), counts[ledger.StatusPending])
}

func TestReconcileDiscountPointsAndItems(t *testing.T) {
	led := &fakeLedger{}
	at := windowStart.Add(time.Hour)

	sale := completedSale("op-1", ledger.PaymentCash, "42000", at)
	sale.Discount = decimal.RequireFromString("2000")
	sale.VoucherDiscount = decimal.RequireFromString("1000")
	sale.PromoDiscount = decimal.RequireFromString("500")
	sale.Tax = decimal.RequireFromString("4200")
	sale.PointsEarned = 42
	sale.PointsUsed = 10
	sale.ItemQuantity = 3
	led.add(sale)

	report, err := NewEngine(led).Reconcile(context.Background(), "op-1", testWindow(), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, report.Discounts.Discount.Equal(decimal.RequireFromString("2000")))
	assert.True(t, report.Discounts.VoucherDiscount.Equal(decimal.RequireFromString("1000")))
	assert.True(t, report.Discounts.PromoDiscount.Equal(decimal.RequireFromString("500")))
	assert.True(t, report.Discounts.Tax.Equal(decimal.RequireFromString("4200")))
	assert.Equal(t, int64(42), report.Points.Earned)
	assert.Equal(t, int64(10), report.Points.Used)
	assert.Equal(t, int64(3), report.ItemsSold)
}

func TestReconcileExactDecimalAccumulation(t *testing.T) {
	led := &fakeLedger{}
	at := windowStart.Add(time.Hour)
	// 0.1 added ten times must be exactly 1, not a float approximation.
	for i := 0; i < 10; i++ {
		led.add(completedSale("op-1", ledger.PaymentCash, "0.1", at))
	}

	report, err := NewEngine(led).Reconcile(context.Background(), "op-1", testWindow(), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, report.ExpectedCash.Equal(decimal.RequireFromString("1")),
		"expected cash %s", report.ExpectedCash)
}
