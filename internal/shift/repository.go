package shift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kasira-pos/kasira-pos/internal/ledger"
	"github.com/kasira-pos/kasira-pos/internal/platform/db"
)

// Store is the persistence contract the lifecycle service depends on.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetOpenShift(ctx context.Context, operatorID string) (*Shift, error)
	GetShift(ctx context.Context, id uuid.UUID) (*Shift, error)
	ListLogs(ctx context.Context, shiftID uuid.UUID) ([]LogEntry, error)
}

// TxStore exposes the operations that must share one transaction: the shift
// state transition, its audit append and the ledger reads that feed the close.
type TxStore interface {
	InsertOpenShift(ctx context.Context, s Shift) error
	GetOpenShiftForUpdate(ctx context.Context, operatorID string) (*Shift, error)
	CloseShift(ctx context.Context, p CloseParams) (bool, error)
	AppendLog(ctx context.Context, entry LogEntry) error
	ListLogs(ctx context.Context, shiftID uuid.UUID) ([]LogEntry, error)
	Ledger() ledger.Reader
}

// CloseParams carries the terminal field set written by the close transition.
type CloseParams struct {
	ShiftID        uuid.UUID
	ClosingBalance decimal.Decimal
	SystemTotal    decimal.Decimal
	Difference     decimal.Decimal
	EndedAt        time.Time
}

// Repository provides PostgreSQL backed shift persistence. The single-open-shift
// invariant is enforced by a partial unique index on shifts(operator_id) WHERE
// status = 'OPEN'; see scripts/schema.sql.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txStore struct {
	tx     pgx.Tx
	ledger *ledger.Repository
}

// WithTx runs fn against a repeatable-read transaction so every ledger read
// and every shift write inside fn observes one snapshot.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("shift: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx, ledger: ledger.NewRepository(tx)})
	})
}

// isSerializationFailure reports whether err is SQLSTATE 40001, raised when a
// repeatable-read transaction loses a row to a concurrently committed update.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

const shiftColumns = `id, operator_id, status, opening_balance::text, closing_balance::text, system_total::text, difference::text, started_at, ended_at`

// GetOpenShift returns the operator's open shift, or nil when none exists.
func (r *Repository) GetOpenShift(ctx context.Context, operatorID string) (*Shift, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE operator_id = $1 AND status = $2`, operatorID, StatusOpen)
	return scanOptionalShift(row)
}

// GetShift returns a shift by id.
func (r *Repository) GetShift(ctx context.Context, id uuid.UUID) (*Shift, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	s, err := scanOptionalShift(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrShiftNotFound
	}
	return s, nil
}

// ListLogs returns the shift's audit entries ordered ascending by creation time.
func (r *Repository) ListLogs(ctx context.Context, shiftID uuid.UUID) ([]LogEntry, error) {
	return listLogs(ctx, r.pool, shiftID)
}

// InsertOpenShift creates the shift row. A concurrent open for the same
// operator trips the partial unique index and surfaces as ErrDuplicateShift.
func (s *txStore) InsertOpenShift(ctx context.Context, sh Shift) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO shifts (id, operator_id, status, opening_balance, started_at)
VALUES ($1, $2, $3, $4, $5)`, sh.ID, sh.OperatorID, sh.Status, sh.OpeningBalance, sh.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateShift
		}
		return fmt.Errorf("shift: insert: %w", err)
	}
	return nil
}

// GetOpenShiftForUpdate locks the operator's open shift row, serialising
// concurrent close attempts. Returns nil when no open shift exists.
func (s *txStore) GetOpenShiftForUpdate(ctx context.Context, operatorID string) (*Shift, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE operator_id = $1 AND status = $2 FOR UPDATE`, operatorID, StatusOpen)
	return scanOptionalShift(row)
}

// CloseShift applies the OPEN -> CLOSED transition. The update is conditional
// on the row still being OPEN; false means another close won the race.
func (s *txStore) CloseShift(ctx context.Context, p CloseParams) (bool, error) {
	tag, err := s.tx.Exec(ctx, `UPDATE shifts
SET status = $2, closing_balance = $3, system_total = $4, difference = $5, ended_at = $6
WHERE id = $1 AND status = $7`,
		p.ShiftID, StatusClosed, p.ClosingBalance, p.SystemTotal, p.Difference, p.EndedAt, StatusOpen)
	if err != nil {
		return false, fmt.Errorf("shift: close: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendLog inserts an audit entry. Failures propagate so the surrounding
// transaction rolls back: state change and audit record commit together.
func (s *txStore) AppendLog(ctx context.Context, entry LogEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("shift: marshal log details: %w", err)
	}
	_, err = s.tx.Exec(ctx, `INSERT INTO shift_logs (id, shift_id, action, details, created_at)
VALUES ($1, $2, $3, $4, $5)`, entry.ID, entry.ShiftID, entry.Action, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("shift: append log: %w", err)
	}
	return nil
}

func (s *txStore) ListLogs(ctx context.Context, shiftID uuid.UUID) ([]LogEntry, error) {
	return listLogs(ctx, s.tx, shiftID)
}

func (s *txStore) Ledger() ledger.Reader {
	return s.ledger
}

func listLogs(ctx context.Context, q ledger.Querier, shiftID uuid.UUID) ([]LogEntry, error) {
	rows, err := q.Query(ctx, `SELECT id, shift_id, action, details, created_at FROM shift_logs WHERE shift_id = $1 ORDER BY created_at ASC`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("shift: list logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var entry LogEntry
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.ShiftID, &entry.Action, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("shift: scan log: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &entry.Details)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shift: list logs: %w", err)
	}
	return entries, nil
}

func scanOptionalShift(row pgx.Row) (*Shift, error) {
	var sh Shift
	var opening string
	var closing, system, difference *string
	err := row.Scan(&sh.ID, &sh.OperatorID, &sh.Status, &opening, &closing, &system, &difference, &sh.StartedAt, &sh.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("shift: scan: %w", err)
	}
	if sh.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return nil, fmt.Errorf("shift: opening balance %q: %w", opening, err)
	}
	if sh.ClosingBalance, err = optionalDecimal(closing); err != nil {
		return nil, err
	}
	if sh.SystemTotal, err = optionalDecimal(system); err != nil {
		return nil, err
	}
	if sh.Difference, err = optionalDecimal(difference); err != nil {
		return nil, err
	}
	return &sh, nil
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("shift: decimal %q: %w", *s, err)
	}
	return &d, nil
}
