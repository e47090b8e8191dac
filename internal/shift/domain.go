// Package shift implements the cashier shift lifecycle: a strict
// one-open-shift-per-operator state machine, end-of-shift cash reconciliation
// and an append-only audit trail.
package shift

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status captures the shift lifecycle. CLOSED is terminal.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// LogAction enumerates audit log entry kinds.
type LogAction string

const (
	ActionOpenShift  LogAction = "OPEN_SHIFT"
	ActionCloseShift LogAction = "CLOSE_SHIFT"
	// ActionUpdateShift is accepted by the log schema for administrative
	// amendments recorded outside the lifecycle service. No operation here
	// emits it.
	ActionUpdateShift LogAction = "UPDATE_SHIFT"
)

// Shift is one bounded work session for an operator. The closing fields
// (ClosingBalance, SystemTotal, Difference, EndedAt) are set together by the
// close transition and are never populated partially.
type Shift struct {
	ID             uuid.UUID        `json:"id"`
	OperatorID     string           `json:"operator_id"`
	Status         Status           `json:"status"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	ClosingBalance *decimal.Decimal `json:"closing_balance,omitempty"`
	SystemTotal    *decimal.Decimal `json:"system_total,omitempty"`
	Difference     *decimal.Decimal `json:"difference,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
}

// LogEntry is one append-only audit record tied to a shift. Entries are never
// mutated or deleted; retrieval order is ascending CreatedAt.
type LogEntry struct {
	ID        uuid.UUID      `json:"id"`
	ShiftID   uuid.UUID      `json:"shift_id"`
	Action    LogAction      `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// OpenShiftInput carries parameters for opening a shift.
type OpenShiftInput struct {
	OperatorID     string
	OpeningBalance decimal.Decimal
}

// Validate ensures the open input is coherent.
func (in OpenShiftInput) Validate() error {
	if strings.TrimSpace(in.OperatorID) == "" {
		return errors.New("shift: operator id required")
	}
	if in.OpeningBalance.IsNegative() {
		return ErrInvalidBalance
	}
	return nil
}

// CloseShiftInput carries parameters for closing a shift.
type CloseShiftInput struct {
	OperatorID   string
	PhysicalCash decimal.Decimal
}

// Validate ensures the close input is coherent.
func (in CloseShiftInput) Validate() error {
	if strings.TrimSpace(in.OperatorID) == "" {
		return errors.New("shift: operator id required")
	}
	if in.PhysicalCash.IsNegative() {
		return ErrInvalidBalance
	}
	return nil
}

// ErrInvalidBalance indicates a negative or malformed money amount.
var ErrInvalidBalance = errors.New("shift: balance must be a non-negative amount")

// ErrDuplicateShift indicates the operator already has an open shift.
var ErrDuplicateShift = errors.New("shift: operator already has an open shift")

// ErrNoActiveShift indicates there is no open shift to close.
var ErrNoActiveShift = errors.New("shift: no open shift for operator")

// ErrShiftNotFound indicates a shift id could not be resolved.
var ErrShiftNotFound = errors.New("shift: not found")

// ErrShiftStillOpen indicates a close report was requested for an open shift.
var ErrShiftStillOpen = errors.New("shift: still open, no close report yet")

// PendingTransactionsError blocks a close while unsettled sales exist. The
// count travels with the error so callers can report it.
type PendingTransactionsError struct {
	Count int64
}

func (e *PendingTransactionsError) Error() string {
	return fmt.Sprintf("shift: %d pending transaction(s) must be settled before closing", e.Count)
}
