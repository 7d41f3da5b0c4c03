package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carelane/scheduling-platform/internal/availability"
	"github.com/carelane/scheduling-platform/internal/bookings"
	"github.com/carelane/scheduling-platform/internal/observability/metrics"
	"github.com/carelane/scheduling-platform/internal/scheduling"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

var cleanupTracer = otel.Tracer("carelane.internal.slots")

// Fields whose modification invalidates previously generated slots.
const (
	FieldStartTime          = "start_time"
	FieldEndTime            = "end_time"
	FieldSchedulingRule     = "scheduling_rule"
	FieldSchedulingInterval = "scheduling_interval"
	FieldStatus             = "status"
)

// SlotStore is the slot persistence surface the cleanup service needs.
type SlotStore interface {
	ListByAvailability(ctx context.Context, availabilityID uuid.UUID) ([]Slot, error)
	ListOrphaned(ctx context.Context) ([]Slot, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error)
	UpdateStatusByIDs(ctx context.Context, ids []uuid.UUID, status Status) (int, error)
	DeleteByAvailability(ctx context.Context, availabilityID uuid.UUID) (int, error)
	InsertBatch(ctx context.Context, records []scheduling.SlotRecord) (int, error)
}

// WindowStore is the availability persistence surface the cleanup service
// needs.
type WindowStore interface {
	Get(ctx context.Context, id uuid.UUID) (*availability.Window, error)
	ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]availability.Window, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TxManager runs a function against transaction-bound stores so a cleanup's
// slot and window mutations commit or roll back together.
type TxManager interface {
	InTx(ctx context.Context, fn func(slots SlotStore, windows WindowStore) error) error
}

// BookingFinder loads bookings for customer notification.
type BookingFinder interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]bookings.Booking, error)
}

// CancellationRecorder writes audit rows for bookings hit by cleanup.
type CancellationRecorder interface {
	RecordCancellation(ctx context.Context, bookingID uuid.UUID, reason string) error
}

// CustomerNotifier tells a booking's customer their appointment was
// affected.
type CustomerNotifier interface {
	NotifyBookingAffected(ctx context.Context, b bookings.Booking, slotStart time.Time, reason string) error
}

// CleanupConfig controls slot disposition policy.
type CleanupConfig struct {
	// PreserveBookedSlots flips booked slots to BLOCKED instead of deleting
	// them. When false, booked slots are left untouched with a warning;
	// cascading booking cancellation is not implemented.
	PreserveBookedSlots bool
	// NotifyAffectedCustomers emails each affected booking's customer.
	NotifyAffectedCustomers bool
	// CreateCancellationRecords writes an audit row per affected booking.
	CreateCancellationRecords bool
	// FailFastNotifications aborts the remaining notifications on the first
	// failure and reports it as an error instead of a warning. Slots already
	// mutated stay mutated either way.
	FailFastNotifications bool
}

// DefaultCleanupConfig preserves booked slots and notifies customers.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		PreserveBookedSlots:     true,
		NotifyAffectedCustomers: true,
	}
}

// CleanupService reconciles previously generated slots against availability
// deletion, cancellation, and modification. Operations never return a Go
// error for expected conditions: callers inspect the result's Errors slice.
type CleanupService struct {
	tx       TxManager
	slots    SlotStore
	windows  WindowStore
	bookings BookingFinder
	recorder CancellationRecorder
	notifier CustomerNotifier
	cfg      CleanupConfig
	clock    availability.Clock
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

// NewCleanupService constructs the slot lifecycle service. notifier and
// recorder may be nil; metrics may be nil.
func NewCleanupService(tx TxManager, slotStore SlotStore, windowStore WindowStore, bookingFinder BookingFinder,
	notifier CustomerNotifier, recorder CancellationRecorder, cfg CleanupConfig,
	clock availability.Clock, m *metrics.SchedulingMetrics, logger *logging.Logger) *CleanupService {
	if tx == nil {
		panic("slots: tx manager required")
	}
	if slotStore == nil || windowStore == nil {
		panic("slots: stores required")
	}
	if clock == nil {
		clock = availability.SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CleanupService{
		tx:       tx,
		slots:    slotStore,
		windows:  windowStore,
		bookings: bookingFinder,
		recorder: recorder,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// CleanupAvailabilitySlots disposes of one window's slots: unbooked slots
// are deleted, booked slots are preserved as BLOCKED (policy permitting) and
// their customers notified.
func (s *CleanupService) CleanupAvailabilitySlots(ctx context.Context, availabilityID uuid.UUID) *CleanupResult {
	ctx, span := cleanupTracer.Start(ctx, "slots.cleanup_availability")
	defer span.End()
	span.SetAttributes(attribute.String("carelane.availability_id", availabilityID.String()))

	started := time.Now()
	result := &CleanupResult{}

	var booked []Slot
	err := s.tx.InTx(ctx, func(slotStore SlotStore, _ WindowStore) error {
		all, err := slotStore.ListByAvailability(ctx, availabilityID)
		if err != nil {
			return err
		}
		result.TotalSlotsProcessed = len(all)
		booked, err = s.disposeSlots(ctx, slotStore, all, result)
		return err
	})
	if err != nil {
		return s.failResult(span, "availability", started, err)
	}

	s.notifyAffected(ctx, booked, "availability cancelled or removed", result)
	s.finishResult("availability", started, result)
	return result
}

// CleanupRecurringSeriesSlots applies the booked/unbooked disposition to
// every window of a recurring series selected by scope, then attempts to
// remove each window record once nothing booked remains on it. Windows are
// processed one transaction at a time; a failure on one window does not
// roll back the windows already handled.
func (s *CleanupService) CleanupRecurringSeriesSlots(ctx context.Context, seriesID uuid.UUID, scope SeriesScope) *CleanupResult {
	ctx, span := cleanupTracer.Start(ctx, "slots.cleanup_series")
	defer span.End()
	span.SetAttributes(
		attribute.String("carelane.series_id", seriesID.String()),
		attribute.String("carelane.scope", string(scope)),
	)

	started := time.Now()
	result := &CleanupResult{}

	if !scope.Valid() {
		return s.failResult(span, "series", started, fmt.Errorf("slots: unknown series scope %q", scope))
	}

	windows, err := s.windows.ListBySeries(ctx, seriesID)
	if err != nil {
		return s.failResult(span, "series", started, err)
	}

	now := s.clock.Now()
	var allBooked []Slot
	for i := range windows {
		w := &windows[i]
		if scope == ScopeFutureOnly && w.Start.Before(now) {
			continue
		}
		if scope == ScopeCancelledOnly && w.Status != availability.StatusCancelled {
			continue
		}

		err := s.tx.InTx(ctx, func(slotStore SlotStore, windowStore WindowStore) error {
			all, err := slotStore.ListByAvailability(ctx, w.ID)
			if err != nil {
				return err
			}
			result.TotalSlotsProcessed += len(all)
			booked, err := s.disposeSlots(ctx, slotStore, all, result)
			if err != nil {
				return err
			}
			allBooked = append(allBooked, booked...)

			// The window record itself goes once no booked slot pins it.
			if len(booked) == 0 || !s.cfg.PreserveBookedSlots {
				if err := windowStore.Delete(ctx, w.ID); err != nil {
					if errors.Is(err, availability.ErrWindowReferenced) {
						result.Warnings = append(result.Warnings,
							fmt.Sprintf("window %s could not be deleted: slots still reference it", w.ID))
						return nil
					}
					if errors.Is(err, availability.ErrNotFound) {
						return nil
					}
					return err
				}
			}
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("window %s: %v", w.ID, err))
		}
	}

	s.notifyAffected(ctx, allBooked, "recurring availability removed", result)
	s.finishResult("series", started, result)
	return result
}

// CleanupOrphanedSlots sweeps every slot whose owning window has been
// cancelled or rejected, applying the standard disposition globally.
func (s *CleanupService) CleanupOrphanedSlots(ctx context.Context) *CleanupResult {
	ctx, span := cleanupTracer.Start(ctx, "slots.cleanup_orphaned")
	defer span.End()

	started := time.Now()
	result := &CleanupResult{}

	var booked []Slot
	err := s.tx.InTx(ctx, func(slotStore SlotStore, _ WindowStore) error {
		orphans, err := slotStore.ListOrphaned(ctx)
		if err != nil {
			return err
		}
		result.TotalSlotsProcessed = len(orphans)

		// Booked orphans already flipped by an earlier sweep stay as they are.
		var fresh []Slot
		for _, sl := range orphans {
			if sl.IsBooked() && sl.Status == StatusBlocked {
				continue
			}
			fresh = append(fresh, sl)
		}
		booked, err = s.disposeSlots(ctx, slotStore, fresh, result)
		return err
	})
	if err != nil {
		return s.failResult(span, "orphaned", started, err)
	}

	s.notifyAffected(ctx, booked, "availability cancelled", result)
	s.finishResult("orphaned", started, result)
	return result
}

// CleanupModifiedAvailabilitySlots re-validates a window's slots after its
// fields changed. Non-destructive changes are a no-op; otherwise any slot
// that no longer fits the window's new bounds or status follows the
// standard disposition.
func (s *CleanupService) CleanupModifiedAvailabilitySlots(ctx context.Context, availabilityID uuid.UUID, modifiedFields []string) *CleanupResult {
	ctx, span := cleanupTracer.Start(ctx, "slots.cleanup_modified")
	defer span.End()
	span.SetAttributes(attribute.String("carelane.availability_id", availabilityID.String()))

	started := time.Now()
	result := &CleanupResult{}

	if !destructiveChange(modifiedFields) {
		s.finishResult("modified", started, result)
		return result
	}

	window, err := s.windows.Get(ctx, availabilityID)
	if err != nil {
		return s.failResult(span, "modified", started, err)
	}

	var booked []Slot
	err = s.tx.InTx(ctx, func(slotStore SlotStore, _ WindowStore) error {
		all, err := slotStore.ListByAvailability(ctx, availabilityID)
		if err != nil {
			return err
		}
		result.TotalSlotsProcessed = len(all)

		var invalid []Slot
		for _, sl := range all {
			if !isSlotValidForModifiedAvailability(&sl, window) {
				invalid = append(invalid, sl)
			}
		}
		booked, err = s.disposeSlots(ctx, slotStore, invalid, result)
		return err
	})
	if err != nil {
		return s.failResult(span, "modified", started, err)
	}

	s.notifyAffected(ctx, booked, "availability modified", result)
	s.finishResult("modified", started, result)
	return result
}

// RegenerateSlotsForAvailability is the designed repair path: it deletes
// every slot of the window and reruns generation fresh from the window's
// current shape.
func (s *CleanupService) RegenerateSlotsForAvailability(ctx context.Context, availabilityID uuid.UUID) *RegenerationResult {
	ctx, span := cleanupTracer.Start(ctx, "slots.regenerate")
	defer span.End()
	span.SetAttributes(attribute.String("carelane.availability_id", availabilityID.String()))

	started := time.Now()
	result := &RegenerationResult{}

	window, err := s.windows.Get(ctx, availabilityID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.ProcessingTimeMs = time.Since(started).Milliseconds()
		return result
	}
	if window.Status != availability.StatusAccepted {
		result.Errors = append(result.Errors,
			fmt.Sprintf("slots can only be generated for accepted availability (status is %s)", window.Status))
		result.ProcessingTimeMs = time.Since(started).Milliseconds()
		return result
	}

	build := scheduling.GenerateSlotDataForAvailability(window.ID, window.Start, window.End,
		window.Rule, window.IntervalMinutes, window.Services, s.clock.Now())
	result.Errors = append(result.Errors, build.Errors...)

	err = s.tx.InTx(ctx, func(slotStore SlotStore, _ WindowStore) error {
		deleted, err := slotStore.DeleteByAvailability(ctx, availabilityID)
		if err != nil {
			return err
		}
		result.SlotsDeleted = deleted

		created, err := slotStore.InsertBatch(ctx, build.Records)
		if err != nil {
			return err
		}
		result.SlotsCreated = created
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return &RegenerationResult{
			Errors:           []string{err.Error()},
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		}
	}

	s.metrics.ObserveSlotsGenerated(string(window.Rule), result.SlotsCreated)
	s.logger.Info("slots regenerated",
		"availability_id", availabilityID,
		"deleted", result.SlotsDeleted,
		"created", result.SlotsCreated,
	)
	result.ProcessingTimeMs = time.Since(started).Milliseconds()
	return result
}

// disposeSlots deletes the unbooked slots in the set and, policy
// permitting, flips the booked ones to BLOCKED. Returns the booked slots
// for later notification.
func (s *CleanupService) disposeSlots(ctx context.Context, store SlotStore, set []Slot, result *CleanupResult) ([]Slot, error) {
	var unbookedIDs []uuid.UUID
	var booked []Slot
	for _, sl := range set {
		if sl.IsBooked() {
			booked = append(booked, sl)
		} else {
			unbookedIDs = append(unbookedIDs, sl.ID)
		}
	}

	if len(unbookedIDs) > 0 {
		deleted, err := store.DeleteByIDs(ctx, unbookedIDs)
		if err != nil {
			return nil, err
		}
		result.SlotsDeleted += deleted
	}

	if len(booked) > 0 {
		if s.cfg.PreserveBookedSlots {
			bookedIDs := make([]uuid.UUID, len(booked))
			for i, sl := range booked {
				bookedIDs[i] = sl.ID
			}
			blocked, err := store.UpdateStatusByIDs(ctx, bookedIDs, StatusBlocked)
			if err != nil {
				return nil, err
			}
			result.SlotsMarkedUnavailable += blocked
			result.BookingsAffected += len(booked)
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d booked slot(s) left in place; cascading booking cancellation is not implemented", len(booked)))
			booked = nil
		}
	}

	return booked, nil
}

// notifyAffected emails the customer behind each booked slot that was
// blocked. Failures become warnings so the rest of the batch proceeds,
// unless fail-fast is configured.
func (s *CleanupService) notifyAffected(ctx context.Context, booked []Slot, reason string, result *CleanupResult) {
	if len(booked) == 0 || !s.cfg.NotifyAffectedCustomers || s.notifier == nil || s.bookings == nil {
		return
	}

	ids := make([]uuid.UUID, 0, len(booked))
	startBySlot := make(map[uuid.UUID]time.Time, len(booked))
	for _, sl := range booked {
		if sl.BookingID == nil {
			continue
		}
		ids = append(ids, *sl.BookingID)
		startBySlot[*sl.BookingID] = sl.Start
	}

	affected, err := s.bookings.GetByIDs(ctx, ids)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not load affected bookings: %v", err))
		return
	}

	for _, b := range affected {
		if s.cfg.CreateCancellationRecords && s.recorder != nil {
			if err := s.recorder.RecordCancellation(ctx, b.ID, reason); err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("cancellation record for booking %s: %v", b.ID, err))
			}
		}

		if err := s.notifier.NotifyBookingAffected(ctx, b, startBySlot[b.ID], reason); err != nil {
			if s.cfg.FailFastNotifications {
				result.Errors = append(result.Errors,
					fmt.Sprintf("notification for booking %s: %v", b.ID, err))
				return
			}
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("notification for booking %s: %v", b.ID, err))
			continue
		}
		result.CustomersNotified++
	}
}

func (s *CleanupService) failResult(span trace.Span, op string, started time.Time, err error) *CleanupResult {
	span.RecordError(err)
	s.logger.Error("slot cleanup failed", "operation", op, "error", err)
	s.metrics.ObserveCleanupDuration(op, time.Since(started).Seconds())
	return &CleanupResult{
		Errors:           []string{err.Error()},
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}
}

func (s *CleanupService) finishResult(op string, started time.Time, result *CleanupResult) {
	result.ProcessingTimeMs = time.Since(started).Milliseconds()
	s.metrics.ObserveCleanup(op, "deleted", result.SlotsDeleted)
	s.metrics.ObserveCleanup(op, "blocked", result.SlotsMarkedUnavailable)
	s.metrics.ObserveCleanupDuration(op, time.Since(started).Seconds())
}

func destructiveChange(fields []string) bool {
	for _, f := range fields {
		switch f {
		case FieldStartTime, FieldEndTime, FieldSchedulingRule, FieldSchedulingInterval, FieldStatus:
			return true
		}
	}
	return false
}

// isSlotValidForModifiedAvailability reports whether a slot still fits the
// window's new bounds and the window is still accepted.
func isSlotValidForModifiedAvailability(sl *Slot, w *availability.Window) bool {
	if w.Status != availability.StatusAccepted {
		return false
	}
	return !sl.Start.Before(w.Start) && !sl.End.After(w.End)
}
