package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a booking does not exist.
var ErrNotFound = errors.New("bookings: booking not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for bookings and their cancellation records.
type Store struct {
	db DB
}

// NewStore creates a new bookings store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const bookingColumns = `id, slot_id, availability_id, customer_name, customer_email, customer_phone, status, cancelled_at, created_at, updated_at`

// Get loads one booking by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get booking: %w", err)
	}
	return b, nil
}

// GetByIDs loads the bookings for the given ids. Missing ids are skipped
// rather than treated as errors; cleanup tolerates dangling references.
func (s *Store) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("bookings: get by ids: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate bookings: %w", err)
	}
	return bookings, nil
}

// RecordCancellation writes an audit row for a booking affected by
// availability cleanup.
func (s *Store) RecordCancellation(ctx context.Context, bookingID uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_cancellations (id, booking_id, reason, created_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), bookingID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("bookings: record cancellation: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	err := row.Scan(&b.ID, &b.SlotID, &b.AvailabilityID, &b.CustomerName, &b.CustomerEmail,
		&b.CustomerPhone, &status, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}
