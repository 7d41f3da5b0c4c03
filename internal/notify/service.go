package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/carelane/scheduling-platform/internal/bookings"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

// Service sends customer-facing notifications when booked slots are
// invalidated by availability changes.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// NotifyBookingAffected tells one booking's customer that their appointment
// was affected by an availability change.
func (s *Service) NotifyBookingAffected(ctx context.Context, b bookings.Booking, slotStart time.Time, reason string) error {
	if s.email == nil {
		s.logger.Debug("notify: no email sender configured, skipping", "booking_id", b.ID)
		return nil
	}
	if b.CustomerEmail == "" {
		return fmt.Errorf("notify: booking %s has no customer email", b.ID)
	}

	name := b.CustomerName
	if name == "" {
		name = "there"
	}

	msg := EmailMessage{
		To:      b.CustomerEmail,
		ToName:  b.CustomerName,
		Subject: "Your appointment needs to be rescheduled",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour appointment on %s is no longer available (%s).\n\nPlease contact us to pick a new time. We apologize for the inconvenience.\n",
			name, slotStart.Format("Monday, January 2 at 3:04 PM"), reason),
	}

	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: booking %s: %w", b.ID, err)
	}

	s.logger.Info("customer notified of affected booking",
		"booking_id", b.ID,
		"slot_start", slotStart,
		"reason", reason,
	)
	return nil
}
