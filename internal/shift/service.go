package shift

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kasira-pos/kasira-pos/internal/ledger"
)

// Notifier hands a close report to the outbound delivery collaborator. The
// collaborator owns retry and backoff; the service calls it at most once per
// close and never rolls a close back on delivery failure.
type Notifier interface {
	Dispatch(ctx context.Context, report Report) error
}

// ReportCache stores the latest close report per shift for cheap retrieval.
type ReportCache interface {
	Put(ctx context.Context, report Report) error
	Get(ctx context.Context, shiftID uuid.UUID) (Report, bool, error)
}

// CloseResult bundles the authoritative close report with the delivery outcome.
type CloseResult struct {
	Report   Report `json:"report"`
	Notified bool   `json:"notified"`
}

// Service orchestrates the shift lifecycle.
type Service struct {
	logger   *slog.Logger
	store    Store
	ledger   ledger.Reader
	cache    ReportCache
	notifier Notifier
	now      func() time.Time

	rebuildGroup singleflight.Group
}

// NewService constructs a Service instance. cache and notifier may be nil.
func NewService(logger *slog.Logger, store Store, ledgerReader ledger.Reader, cache ReportCache, notifier Notifier) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		ledger:   ledgerReader,
		cache:    cache,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenShift atomically creates an OPEN shift for the operator and appends the
// OPEN_SHIFT audit entry in the same transaction. A concurrent open for the
// same operator fails with ErrDuplicateShift.
func (s *Service) OpenShift(ctx context.Context, in OpenShiftInput) (Shift, error) {
	if err := in.Validate(); err != nil {
		return Shift{}, err
	}

	sh := Shift{
		ID:             uuid.New(),
		OperatorID:     in.OperatorID,
		Status:         StatusOpen,
		OpeningBalance: in.OpeningBalance,
		StartedAt:      s.now(),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.InsertOpenShift(ctx, sh); err != nil {
			return err
		}
		return tx.AppendLog(ctx, LogEntry{
			ID:      uuid.New(),
			ShiftID: sh.ID,
			Action:  ActionOpenShift,
			Details: map[string]any{
				"opening_balance": sh.OpeningBalance.String(),
			},
			CreatedAt: sh.StartedAt,
		})
	})
	if err != nil {
		return Shift{}, err
	}

	s.logger.Info("shift opened",
		slog.String("shift_id", sh.ID.String()),
		slog.String("operator_id", sh.OperatorID))
	return sh, nil
}

// CurrentShift returns the operator's open shift, or nil when none exists.
func (s *Service) CurrentShift(ctx context.Context, operatorID string) (*Shift, error) {
	return s.store.GetOpenShift(ctx, operatorID)
}

// CloseShift runs the full close inside one repeatable-read transaction:
// pending-sale guard, ledger aggregation, the conditional OPEN -> CLOSED
// update and the CLOSE_SHIFT audit entry all see the same snapshot and commit
// together. The report cache write and notification dispatch happen after
// commit and are best effort.
func (s *Service) CloseShift(ctx context.Context, in CloseShiftInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}

	var report Report
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		sh, err := tx.GetOpenShiftForUpdate(ctx, in.OperatorID)
		if err != nil {
			return err
		}
		if sh == nil {
			return ErrNoActiveShift
		}

		pending, err := tx.Ledger().CountPending(ctx, in.OperatorID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return &PendingTransactionsError{Count: pending}
		}

		endedAt := s.now()
		window := ledger.Window{From: sh.StartedAt, To: endedAt}
		report, err = NewEngine(tx.Ledger()).Reconcile(ctx, in.OperatorID, window, sh.OpeningBalance)
		if err != nil {
			return err
		}

		report.ShiftID = sh.ID
		report.PhysicalCash = in.PhysicalCash
		report.Difference = in.PhysicalCash.Sub(report.ExpectedCash)

		ok, err := tx.CloseShift(ctx, CloseParams{
			ShiftID:        sh.ID,
			ClosingBalance: in.PhysicalCash,
			SystemTotal:    report.ExpectedCash,
			Difference:     report.Difference,
			EndedAt:        endedAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoActiveShift
		}

		if err := tx.AppendLog(ctx, LogEntry{
			ID:      uuid.New(),
			ShiftID: sh.ID,
			Action:  ActionCloseShift,
			Details: map[string]any{
				"closing_balance":    in.PhysicalCash.String(),
				"system_total":       report.ExpectedCash.String(),
				"difference":         report.Difference.String(),
				"total_transactions": report.GrossRevenue.String(),
				"cash_total":         report.CashSales.String(),
			},
			CreatedAt: endedAt,
		}); err != nil {
			return err
		}

		closing := in.PhysicalCash
		system := report.ExpectedCash
		diff := report.Difference
		closed := *sh
		closed.Status = StatusClosed
		closed.ClosingBalance = &closing
		closed.SystemTotal = &system
		closed.Difference = &diff
		closed.EndedAt = &endedAt
		report.Shift = closed

		logs, err := tx.ListLogs(ctx, sh.ID)
		if err != nil {
			return err
		}
		report.Logs = logs
		return nil
	})
	if err != nil {
		// The loser of a concurrent close aborts with a serialization
		// failure once the winner commits; to this caller the shift is
		// already closed.
		if isSerializationFailure(err) {
			return CloseResult{}, ErrNoActiveShift
		}
		return CloseResult{}, err
	}

	result := CloseResult{Report: report}

	if s.cache != nil {
		if err := s.cache.Put(ctx, report); err != nil {
			s.logger.Warn("cache close report", slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Dispatch(ctx, report); err != nil {
			s.logger.Warn("dispatch close report", slog.Any("error", err))
		} else {
			result.Notified = true
		}
	}

	s.logger.Info("shift closed",
		slog.String("shift_id", report.ShiftID.String()),
		slog.String("operator_id", report.OperatorID),
		slog.String("difference", report.Difference.String()))
	return result, nil
}

// ReportFor returns the close report of a closed shift. It serves from the
// cache when possible and otherwise rebuilds the report from the stored shift
// row: the window is fixed and ledger rows are immutable, so the rebuild is
// deterministic. Concurrent rebuilds for the same shift are collapsed.
func (s *Service) ReportFor(ctx context.Context, shiftID uuid.UUID) (Report, error) {
	if s.cache != nil {
		report, ok, err := s.cache.Get(ctx, shiftID)
		if err != nil {
			s.logger.Warn("read report cache", slog.Any("error", err))
		} else if ok {
			return report, nil
		}
	}

	// The rebuild is shared by every caller that joins the flight, so it
	// must not inherit the first caller's cancellation.
	rebuildCtx := context.WithoutCancel(ctx)
	ch := s.rebuildGroup.DoChan(shiftID.String(), func() (any, error) {
		return s.rebuildReport(rebuildCtx, shiftID)
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (s *Service) rebuildReport(ctx context.Context, shiftID uuid.UUID) (Report, error) {
	sh, err := s.store.GetShift(ctx, shiftID)
	if err != nil {
		return Report{}, err
	}
	if sh.Status != StatusClosed || sh.EndedAt == nil {
		return Report{}, ErrShiftStillOpen
	}

	window := ledger.Window{From: sh.StartedAt, To: *sh.EndedAt}
	report, err := NewEngine(s.ledger).Reconcile(ctx, sh.OperatorID, window, sh.OpeningBalance)
	if err != nil {
		return Report{}, err
	}
	report.ShiftID = sh.ID
	if sh.ClosingBalance != nil {
		report.PhysicalCash = *sh.ClosingBalance
	}
	if sh.Difference != nil {
		report.Difference = *sh.Difference
	}
	report.Shift = *sh

	logs, err := s.store.ListLogs(ctx, shiftID)
	if err != nil {
		return Report{}, err
	}
	report.Logs = logs

	if s.cache != nil {
		if err := s.cache.Put(ctx, report); err != nil {
			s.logger.Warn("cache rebuilt report", slog.Any("error", err))
		}
	}
	return report, nil
}
