// Package notify delivers end-of-shift reconciliation reports over the
// configured messaging channel. Delivery runs on the background worker;
// retry and backoff belong to the queue, never to the shift close itself.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/kasira-pos/kasira-pos/internal/shift"
)

// TaskTypeShiftReport is the task type for delivering a shift close report.
const TaskTypeShiftReport = "shift:report"

// DispatchOptions tunes queue behaviour for report delivery.
type DispatchOptions struct {
	MaxRetry  int
	Recipient string
}

// Dispatcher enqueues report delivery tasks. It implements shift.Notifier.
type Dispatcher struct {
	client *asynq.Client
	logger *slog.Logger
	opts   DispatchOptions
}

// NewDispatcher constructs a Dispatcher over the given Asynq client.
func NewDispatcher(client *asynq.Client, logger *slog.Logger, opts DispatchOptions) *Dispatcher {
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	return &Dispatcher{client: client, logger: logger, opts: opts}
}

// ReportPayload is the wire form of a queued report delivery.
type ReportPayload struct {
	Recipient string       `json:"recipient,omitempty"`
	Report    shift.Report `json:"report"`
}

// NewShiftReportTask constructs an Asynq task carrying the report.
func NewShiftReportTask(payload ReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeShiftReport, data), nil
}

// Dispatch enqueues the report exactly once. Failure to enqueue is returned to
// the caller but the shift close it belongs to has already committed.
func (d *Dispatcher) Dispatch(ctx context.Context, report shift.Report) error {
	task, err := NewShiftReportTask(ReportPayload{Recipient: d.opts.Recipient, Report: report})
	if err != nil {
		return fmt.Errorf("notify: build task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task, asynq.MaxRetry(d.opts.MaxRetry))
	if err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	d.logger.Info("shift report queued",
		slog.String("task_id", info.ID),
		slog.String("shift_id", report.ShiftID.String()))
	return nil
}

// Sender pushes a formatted message to the messaging channel.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// NewShiftReportHandler returns the worker-side handler for report tasks.
// Returned errors trigger Asynq's retry with backoff; a malformed payload is
// dropped instead of retried.
func NewShiftReportHandler(logger *slog.Logger, sender Sender) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReportPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("malformed shift report payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		body := FormatReportMessage(payload.Report)
		if sender == nil {
			logger.Info("shift report (no sender configured)",
				slog.String("shift_id", payload.Report.ShiftID.String()),
				slog.String("body", body))
			return nil
		}
		if err := sender.Send(ctx, payload.Recipient, body); err != nil {
			return fmt.Errorf("notify: send report: %w", err)
		}
		logger.Info("shift report delivered",
			slog.String("shift_id", payload.Report.ShiftID.String()),
			slog.String("recipient", payload.Recipient))
		return nil
	}
}

// FormatReportMessage renders the human-readable close summary. Amounts are
// rounded to two decimals here, at presentation, and nowhere earlier.
func FormatReportMessage(r shift.Report) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	p.Fprintf(&b, "Shift close report %s\n", r.ShiftID)
	p.Fprintf(&b, "Operator: %s\n", r.OperatorID)
	p.Fprintf(&b, "Window: %s - %s\n",
		r.WindowStart.Format("2006-01-02 15:04"), r.WindowEnd.Format("2006-01-02 15:04"))
	p.Fprintf(&b, "Opening balance: %v\n", amount(p, r.OpeningBalance))
	p.Fprintf(&b, "Expected cash: %v\n", amount(p, r.ExpectedCash))
	p.Fprintf(&b, "Physical cash: %v\n", amount(p, r.PhysicalCash))
	p.Fprintf(&b, "Difference: %s%v\n", sign(r.Difference), amount(p, r.Difference.Abs()))
	p.Fprintf(&b, "Gross revenue: %v\n", amount(p, r.GrossRevenue))
	p.Fprintf(&b, "Items sold: %d\n", r.ItemsSold)

	b.WriteString("Payments:\n")
	for _, line := range r.PaymentBreakdown {
		p.Fprintf(&b, "  %-14s %v (%d)\n", line.Method, amount(p, line.Total), line.Count)
	}
	return b.String()
}

func amount(p *message.Printer, d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return p.Sprintf("%v", number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func sign(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-"
	}
	if d.IsPositive() {
		return "+"
	}
	return ""
}
