package shift

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kasira-pos/kasira-pos/internal/ledger"
)

// PaymentLine is one row of the per-method breakdown.
type PaymentLine struct {
	Method ledger.PaymentMethod `json:"method"`
	Total  decimal.Decimal      `json:"total"`
	Count  int64                `json:"count"`
}

// StatusCount is one row of the per-status breakdown. Counts cover all
// transactions in window regardless of payment method.
type StatusCount struct {
	Status ledger.Status `json:"status"`
	Count  int64         `json:"count"`
}

// Report is the end-of-shift reconciliation result.
//
// ExpectedCash and GrossRevenue answer different questions and must never be
// conflated: expected cash is opening balance plus CASH-only completed sales,
// gross revenue is completed sales across every payment method.
type Report struct {
	ShiftID     uuid.UUID `json:"shift_id"`
	OperatorID  string    `json:"operator_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CashSales      decimal.Decimal `json:"cash_sales"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	GrossRevenue   decimal.Decimal `json:"gross_revenue"`
	PhysicalCash   decimal.Decimal `json:"physical_cash"`
	Difference     decimal.Decimal `json:"difference"`

	PaymentBreakdown []PaymentLine         `json:"payment_breakdown"`
	StatusCounts     []StatusCount         `json:"status_counts"`
	Discounts        ledger.DiscountTotals `json:"discounts"`
	Points           ledger.PointsTotals   `json:"points"`
	ItemsSold        int64                 `json:"items_sold"`

	Shift Shift      `json:"shift"`
	Logs  []LogEntry `json:"logs,omitempty"`
}

// Engine computes reconciliation figures from the ledger. It is a pure reader:
// construct it over a transaction-scoped ledger.Reader to get a consistent
// snapshot for the whole computation.
type Engine struct {
	ledger ledger.Reader
}

// NewEngine constructs an Engine over the given ledger reader.
func NewEngine(r ledger.Reader) *Engine {
	return &Engine{ledger: r}
}

// Reconcile aggregates the operator's sales over the window and derives
// expected cash from the opening balance. PhysicalCash, Difference, Shift and
// Logs are left for the caller to fill in.
func (e *Engine) Reconcile(ctx context.Context, operatorID string, w ledger.Window, openingBalance decimal.Decimal) (Report, error) {
	report := Report{
		OperatorID:     operatorID,
		WindowStart:    w.From,
		WindowEnd:      w.To,
		OpeningBalance: openingBalance,
	}

	gross, err := e.ledger.Aggregate(ctx, operatorID, w, ledger.CompletedFilter())
	if err != nil {
		return Report{}, err
	}
	report.GrossRevenue = gross.Sum

	report.PaymentBreakdown = make([]PaymentLine, 0, len(ledger.PaymentMethods()))
	for _, method := range ledger.PaymentMethods() {
		agg, err := e.ledger.Aggregate(ctx, operatorID, w, ledger.CompletedByMethodFilter(method))
		if err != nil {
			return Report{}, err
		}
		report.PaymentBreakdown = append(report.PaymentBreakdown, PaymentLine{
			Method: method,
			Total:  agg.Sum,
			Count:  agg.Count,
		})
		if method == ledger.PaymentCash {
			report.CashSales = agg.Sum
		}
	}
	report.ExpectedCash = openingBalance.Add(report.CashSales)

	report.StatusCounts = make([]StatusCount, 0, len(ledger.Statuses()))
	for _, status := range ledger.Statuses() {
		agg, err := e.ledger.Aggregate(ctx, operatorID, w, ledger.StatusOnlyFilter(status))
		if err != nil {
			return Report{}, err
		}
		report.StatusCounts = append(report.StatusCounts, StatusCount{Status: status, Count: agg.Count})
	}

	if report.Discounts, err = e.ledger.DiscountTotals(ctx, operatorID, w); err != nil {
		return Report{}, err
	}
	if report.Points, err = e.ledger.PointsTotals(ctx, operatorID, w); err != nil {
		return Report{}, err
	}
	if report.ItemsSold, err = e.ledger.SumLineItemQuantity(ctx, operatorID, w, ledger.StatusCompleted); err != nil {
		return Report{}, err
	}

	return report, nil
}
