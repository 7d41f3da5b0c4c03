package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carelane/scheduling-platform/internal/scheduling"
)

// DB abstracts the pgx query interface for testing. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for slots.
type Store struct {
	db DB
}

// NewStore creates a new slot store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// WithDB returns a copy of the store bound to the given DB, typically a
// transaction.
func (s *Store) WithDB(db DB) *Store {
	return &Store{db: db}
}

const slotColumns = `id, availability_id, service_id, service_config_id, start_time, end_time, duration_minutes, price_cents, status, booking_id, generated_at, created_at, updated_at`

// InsertBatch persists a batch of freshly generated slot records.
func (s *Store) InsertBatch(ctx context.Context, records []scheduling.SlotRecord) (int, error) {
	now := time.Now().UTC()
	inserted := 0
	for _, rec := range records {
		_, err := s.db.Exec(ctx, `
			INSERT INTO slots (id, availability_id, service_id, service_config_id, start_time, end_time, duration_minutes, price_cents, status, generated_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.New(), rec.AvailabilityID, rec.ServiceID, rec.ServiceConfigID, rec.Start, rec.End,
			rec.DurationMinutes, rec.PriceCents, rec.Status, rec.GeneratedAt, now, now,
		)
		if err != nil {
			return inserted, fmt.Errorf("slots: insert batch: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// ListByAvailability returns every slot belonging to one window.
func (s *Store) ListByAvailability(ctx context.Context, availabilityID uuid.UUID) ([]Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE availability_id = $1
		ORDER BY start_time ASC`, availabilityID)
	if err != nil {
		return nil, fmt.Errorf("slots: list by availability: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// ListOrphaned returns slots whose owning window has been cancelled or
// rejected — slots that should not have survived their window's
// invalidation.
func (s *Store) ListOrphaned(ctx context.Context) ([]Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.`+aliasedSlotColumns("s")+`
		FROM slots s
		JOIN availability_windows w ON w.id = s.availability_id
		WHERE w.status IN ('CANCELLED', 'REJECTED')
		ORDER BY s.start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("slots: list orphaned: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// DeleteByIDs removes the given slots outright.
func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM slots WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("slots: delete by ids: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateStatusByIDs flips the given slots to the target status.
func (s *Store) UpdateStatusByIDs(ctx context.Context, ids []uuid.UUID, status Status) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE slots SET status = $2, updated_at = $3
		WHERE id = ANY($1)`, ids, string(status), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("slots: update status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteByAvailability removes all of a window's slots.
func (s *Store) DeleteByAvailability(ctx context.Context, availabilityID uuid.UUID) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM slots WHERE availability_id = $1`, availabilityID)
	if err != nil {
		return 0, fmt.Errorf("slots: delete by availability: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountBooked reports how many of a window's slots carry bookings.
func (s *Store) CountBooked(ctx context.Context, availabilityID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM slots
		WHERE availability_id = $1 AND booking_id IS NOT NULL`, availabilityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("slots: count booked: %w", err)
	}
	return count, nil
}

func aliasedSlotColumns(alias string) string {
	return `id, ` + alias + `.availability_id, ` + alias + `.service_id, ` + alias + `.service_config_id, ` +
		alias + `.start_time, ` + alias + `.end_time, ` + alias + `.duration_minutes, ` + alias + `.price_cents, ` +
		alias + `.status, ` + alias + `.booking_id, ` + alias + `.generated_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	var out []Slot
	for rows.Next() {
		var sl Slot
		var status string
		err := rows.Scan(&sl.ID, &sl.AvailabilityID, &sl.ServiceID, &sl.ServiceConfigID,
			&sl.Start, &sl.End, &sl.DurationMinutes, &sl.PriceCents, &status,
			&sl.BookingID, &sl.GeneratedAt, &sl.CreatedAt, &sl.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("slots: scan slot: %w", err)
		}
		sl.Status = Status(status)
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: iterate slots: %w", err)
	}
	return out, nil
}
