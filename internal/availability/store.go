package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carelane/scheduling-platform/internal/recurrence"
	"github.com/carelane/scheduling-platform/internal/scheduling"
)

var (
	// ErrNotFound is returned when a window does not exist.
	ErrNotFound = errors.New("availability: window not found")
	// ErrWindowReferenced is returned when a hard delete is blocked by rows
	// (preserved booked slots) still referencing the window.
	ErrWindowReferenced = errors.New("availability: window still referenced by slots")
)

// foreign_key_violation
const pgForeignKeyViolation = "23503"

// DB abstracts the pgx query interface for testing. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for availability_windows.
type Store struct {
	db DB
}

// NewStore creates a new availability store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// WithDB returns a copy of the store bound to the given DB, typically a
// transaction.
func (s *Store) WithDB(db DB) *Store {
	return &Store{db: db}
}

const windowColumns = `id, provider_id, org_id, location_id, start_time, end_time, scheduling_rule, scheduling_interval, is_recurring, recurrence, series_id, status, billing_entity, services, created_at, updated_at`

// Create inserts a new availability window.
func (s *Store) Create(ctx context.Context, w *Window) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	services, err := json.Marshal(w.Services)
	if err != nil {
		return fmt.Errorf("availability: marshal services: %w", err)
	}
	var pattern []byte
	if w.Recurrence != nil {
		pattern, err = json.Marshal(w.Recurrence)
		if err != nil {
			return fmt.Errorf("availability: marshal recurrence: %w", err)
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO availability_windows (id, provider_id, org_id, location_id, start_time, end_time, scheduling_rule, scheduling_interval, is_recurring, recurrence, series_id, status, billing_entity, services, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		w.ID, w.ProviderID, w.OrgID, w.LocationID, w.Start, w.End, string(w.Rule), w.IntervalMinutes,
		w.IsRecurring, pattern, w.SeriesID, string(w.Status), w.BillingEntity, services, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("availability: create window: %w", err)
	}
	return nil
}

// Get loads one window by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Window, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE id = $1`, id)
	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("availability: get window: %w", err)
	}
	return w, nil
}

// Update rewrites a window's mutable fields.
func (s *Store) Update(ctx context.Context, w *Window) error {
	w.UpdatedAt = time.Now().UTC()

	services, err := json.Marshal(w.Services)
	if err != nil {
		return fmt.Errorf("availability: marshal services: %w", err)
	}
	var pattern []byte
	if w.Recurrence != nil {
		pattern, err = json.Marshal(w.Recurrence)
		if err != nil {
			return fmt.Errorf("availability: marshal recurrence: %w", err)
		}
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE availability_windows
		SET start_time = $2, end_time = $3, scheduling_rule = $4, scheduling_interval = $5,
		    is_recurring = $6, recurrence = $7, status = $8, billing_entity = $9, services = $10, updated_at = $11
		WHERE id = $1`,
		w.ID, w.Start, w.End, string(w.Rule), w.IntervalMinutes,
		w.IsRecurring, pattern, string(w.Status), w.BillingEntity, services, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("availability: update window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a window's status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE availability_windows
		SET status = $2, updated_at = $3
		WHERE id = $1`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("availability: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete hard-deletes a window. Returns ErrWindowReferenced when preserved
// slots still point at it.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrWindowReferenced
		}
		return fmt.Errorf("availability: delete window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByProviderAndStatus returns a provider's windows in the given
// statuses, optionally excluding one window (the one being updated).
func (s *Store) FindByProviderAndStatus(ctx context.Context, providerID uuid.UUID, statuses []Status, excludeID *uuid.UUID) ([]Window, error) {
	states := make([]string, len(statuses))
	for i, st := range statuses {
		states[i] = string(st)
	}

	var rows pgx.Rows
	var err error
	if excludeID != nil {
		rows, err = s.db.Query(ctx, `
			SELECT `+windowColumns+`
			FROM availability_windows
			WHERE provider_id = $1 AND status = ANY($2) AND id <> $3
			ORDER BY start_time ASC`, providerID, states, *excludeID)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+windowColumns+`
			FROM availability_windows
			WHERE provider_id = $1 AND status = ANY($2)
			ORDER BY start_time ASC`, providerID, states)
	}
	if err != nil {
		return nil, fmt.Errorf("availability: find by provider: %w", err)
	}
	defer rows.Close()
	return scanWindows(rows)
}

// ListByProvider returns a provider's windows intersecting [from, to).
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Window, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: list by provider: %w", err)
	}
	defer rows.Close()
	return scanWindows(rows)
}

// ListBySeries returns every window instance of a recurring series.
func (s *Store) ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]Window, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE series_id = $1
		ORDER BY start_time ASC`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("availability: list by series: %w", err)
	}
	defer rows.Close()
	return scanWindows(rows)
}

// CountBookedSlots reports how many of the window's slots carry a booking.
func (s *Store) CountBookedSlots(ctx context.Context, availabilityID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM slots
		WHERE availability_id = $1 AND booking_id IS NOT NULL`, availabilityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("availability: count booked slots: %w", err)
	}
	return count, nil
}

func scanWindows(rows pgx.Rows) ([]Window, error) {
	var windows []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("availability: scan window: %w", err)
		}
		windows = append(windows, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate windows: %w", err)
	}
	return windows, nil
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var rule, status string
	var services, pattern []byte
	err := row.Scan(&w.ID, &w.ProviderID, &w.OrgID, &w.LocationID, &w.Start, &w.End,
		&rule, &w.IntervalMinutes, &w.IsRecurring, &pattern, &w.SeriesID,
		&status, &w.BillingEntity, &services, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Rule = scheduling.Rule(rule)
	w.Status = Status(status)
	if len(services) > 0 {
		if err := json.Unmarshal(services, &w.Services); err != nil {
			return nil, fmt.Errorf("unmarshal services: %w", err)
		}
	}
	if len(pattern) > 0 {
		w.Recurrence = &recurrence.Pattern{}
		if err := json.Unmarshal(pattern, w.Recurrence); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence: %w", err)
		}
	}
	return &w, nil
}
