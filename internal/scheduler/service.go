package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carelane/scheduling-platform/internal/availability"
	"github.com/carelane/scheduling-platform/internal/lock"
	"github.com/carelane/scheduling-platform/internal/observability/metrics"
	"github.com/carelane/scheduling-platform/internal/recurrence"
	"github.com/carelane/scheduling-platform/internal/scheduling"
	"github.com/carelane/scheduling-platform/internal/slots"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

var tracer = otel.Tracer("carelane.internal.scheduler")

// ErrConcurrentChange is returned when another request holds the provider's
// availability lock.
var ErrConcurrentChange = errors.New("scheduler: concurrent availability change in flight")

// WindowStore is the availability persistence surface the orchestrator needs.
type WindowStore interface {
	Create(ctx context.Context, w *availability.Window) error
	Get(ctx context.Context, id uuid.UUID) (*availability.Window, error)
	Update(ctx context.Context, w *availability.Window) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status availability.Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Window, error)
	ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]availability.Window, error)
}

// SlotWriter persists freshly generated slot records.
type SlotWriter interface {
	InsertBatch(ctx context.Context, records []scheduling.SlotRecord) (int, error)
}

// Validator enforces the availability business rules before any write.
type Validator interface {
	ValidateAvailability(ctx context.Context, in availability.ValidateInput) (*availability.ValidationResult, error)
	ValidateRecurringAvailability(ctx context.Context, providerID uuid.UUID, instances []recurrence.Instance) (*availability.ValidationResult, error)
	ValidateAvailabilityUpdate(ctx context.Context, windowID uuid.UUID, in availability.ValidateInput) (*availability.ValidationResult, error)
	CanUpdateAvailability(ctx context.Context, availabilityID uuid.UUID) (*availability.UpdateEligibility, error)
}

// Lifecycle reconciles slots after availability mutations.
type Lifecycle interface {
	CleanupAvailabilitySlots(ctx context.Context, availabilityID uuid.UUID) *slots.CleanupResult
	CleanupRecurringSeriesSlots(ctx context.Context, seriesID uuid.UUID, scope slots.SeriesScope) *slots.CleanupResult
	CleanupModifiedAvailabilitySlots(ctx context.Context, availabilityID uuid.UUID, modifiedFields []string) *slots.CleanupResult
	RegenerateSlotsForAvailability(ctx context.Context, availabilityID uuid.UUID) *slots.RegenerationResult
}

// Service is the orchestration layer: it validates, persists, and generates
// slots for availability windows, serialized per provider.
type Service struct {
	windows   WindowStore
	slots     SlotWriter
	validator Validator
	lifecycle Lifecycle
	expander  recurrence.Expander
	locker    lock.Locker
	lockTTL   time.Duration
	clock     availability.Clock
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

// NewService wires the orchestrator. locker may be nil (mutations run
// unserialized); metrics may be nil.
func NewService(windows WindowStore, slotWriter SlotWriter, validator Validator, lifecycle Lifecycle,
	expander recurrence.Expander, locker lock.Locker, lockTTL time.Duration,
	clock availability.Clock, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if windows == nil || slotWriter == nil || validator == nil || lifecycle == nil {
		panic("scheduler: windows, slots, validator and lifecycle are required")
	}
	if expander == nil {
		expander = recurrence.Weekly{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	if clock == nil {
		clock = availability.SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		windows:   windows,
		slots:     slotWriter,
		validator: validator,
		lifecycle: lifecycle,
		expander:  expander,
		locker:    locker,
		lockTTL:   lockTTL,
		clock:     clock,
		metrics:   m,
		logger:    logger,
	}
}

// CreateInput describes a new availability window (or recurring series when
// Recurrence is set).
type CreateInput struct {
	ProviderID      uuid.UUID
	OrgID           *uuid.UUID
	LocationID      *uuid.UUID
	Start           time.Time
	End             time.Time
	Rule            scheduling.Rule
	IntervalMinutes int
	Services        []scheduling.ServiceOffering
	Recurrence      *recurrence.Pattern
	BillingEntity   string
	// CreatedBySelf marks the provider creating their own availability,
	// which is accepted immediately; on-behalf creations start PENDING.
	CreatedBySelf bool
}

// CreateResult reports the outcome of a create. When validation fails,
// Windows is empty and Validation carries every violation.
type CreateResult struct {
	Validation       *availability.ValidationResult `json:"validation"`
	Windows          []availability.Window          `json:"windows,omitempty"`
	SlotsCreated     int                            `json:"slots_created"`
	GenerationErrors []string                       `json:"generation_errors,omitempty"`
}

// Create validates and persists a window (or recurring series), generating
// slots immediately when the window lands ACCEPTED. The whole operation runs
// under the provider's lock so two concurrent creates cannot both pass
// overlap validation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.create_availability")
	defer span.End()
	span.SetAttributes(attribute.String("carelane.provider_id", in.ProviderID.String()))

	var result *CreateResult
	err := lock.Do(ctx, s.locker, providerKey(in.ProviderID), s.lockTTL, func(ctx context.Context) error {
		var err error
		result, err = s.create(ctx, in)
		return err
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, fmt.Errorf("%w: provider %s", ErrConcurrentChange, in.ProviderID)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	status := availability.StatusPending
	if in.CreatedBySelf {
		status = availability.StatusAccepted
	}

	if in.Recurrence != nil {
		return s.createRecurring(ctx, in, status)
	}

	validation, err := s.validator.ValidateAvailability(ctx, availability.ValidateInput{
		ProviderID: in.ProviderID,
		Start:      in.Start,
		End:        in.End,
	})
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		s.metrics.ObserveValidationFailure("create")
		return &CreateResult{Validation: validation}, nil
	}

	w := s.newWindow(in, status, nil, in.Start, in.End)
	if err := s.windows.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("scheduler: create availability: %w", err)
	}

	result := &CreateResult{Validation: validation, Windows: []availability.Window{*w}}
	if status == availability.StatusAccepted {
		created, genErrs, err := s.generateSlots(ctx, w)
		if err != nil {
			return nil, err
		}
		result.SlotsCreated = created
		result.GenerationErrors = genErrs
	}

	s.logger.Info("availability created",
		"availability_id", w.ID,
		"provider_id", in.ProviderID,
		"status", status,
		"slots_created", result.SlotsCreated,
	)
	return result, nil
}

func (s *Service) createRecurring(ctx context.Context, in CreateInput, status availability.Status) (*CreateResult, error) {
	instances := s.expander.Expand(*in.Recurrence, in.Start, in.End, recurrence.MaxInstances)
	if len(instances) == 0 {
		validation := &availability.ValidationResult{IsValid: false,
			Errors: []string{"recurrence pattern produced no instances"}}
		s.metrics.ObserveValidationFailure("create_recurring")
		return &CreateResult{Validation: validation}, nil
	}

	validation, err := s.validator.ValidateRecurringAvailability(ctx, in.ProviderID, instances)
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		// Nothing is persisted when any instance of the batch fails.
		s.metrics.ObserveValidationFailure("create_recurring")
		return &CreateResult{Validation: validation}, nil
	}

	seriesID := uuid.New()
	result := &CreateResult{Validation: validation}
	for _, inst := range instances {
		w := s.newWindow(in, status, &seriesID, inst.Start, inst.End)
		if err := s.windows.Create(ctx, w); err != nil {
			return nil, fmt.Errorf("scheduler: create recurring availability: %w", err)
		}
		result.Windows = append(result.Windows, *w)

		if status == availability.StatusAccepted {
			created, genErrs, err := s.generateSlots(ctx, w)
			if err != nil {
				return nil, err
			}
			result.SlotsCreated += created
			result.GenerationErrors = append(result.GenerationErrors, genErrs...)
		}
	}

	s.logger.Info("recurring availability created",
		"series_id", seriesID,
		"provider_id", in.ProviderID,
		"instances", len(result.Windows),
		"slots_created", result.SlotsCreated,
	)
	return result, nil
}

func (s *Service) newWindow(in CreateInput, status availability.Status, seriesID *uuid.UUID, start, end time.Time) *availability.Window {
	return &availability.Window{
		ID:              uuid.New(),
		ProviderID:      in.ProviderID,
		OrgID:           in.OrgID,
		LocationID:      in.LocationID,
		Start:           start,
		End:             end,
		Rule:            in.Rule,
		IntervalMinutes: in.IntervalMinutes,
		IsRecurring:     seriesID != nil,
		Recurrence:      in.Recurrence,
		SeriesID:        seriesID,
		Status:          status,
		BillingEntity:   in.BillingEntity,
		Services:        in.Services,
	}
}

func (s *Service) generateSlots(ctx context.Context, w *availability.Window) (int, []string, error) {
	build := scheduling.GenerateSlotDataForAvailability(w.ID, w.Start, w.End,
		w.Rule, w.IntervalMinutes, w.Services, s.clock.Now())

	created, err := s.slots.InsertBatch(ctx, build.Records)
	if err != nil {
		return created, build.Errors, fmt.Errorf("scheduler: persist slots: %w", err)
	}
	s.metrics.ObserveSlotsGenerated(string(w.Rule), created)
	return created, build.Errors, nil
}

// UpdateInput carries the fields an availability update may change.
type UpdateInput struct {
	Start           time.Time
	End             time.Time
	Rule            scheduling.Rule
	IntervalMinutes int
	Services        []scheduling.ServiceOffering
	BillingEntity   string
}

// UpdateResult reports the outcome of an update, including the slot
// reconciliation that followed it.
type UpdateResult struct {
	Validation   *availability.ValidationResult  `json:"validation"`
	Eligibility  *availability.UpdateEligibility `json:"eligibility,omitempty"`
	Window       *availability.Window            `json:"window,omitempty"`
	Cleanup      *slots.CleanupResult            `json:"cleanup,omitempty"`
	Regeneration *slots.RegenerationResult       `json:"regeneration,omitempty"`
}

// Update reschedules a window under the provider's lock. Windows with booked
// slots cannot change their time fields; unbooked accepted windows get their
// slots regenerated from scratch, booked ones go through modified-window
// reconciliation so intact bookings survive.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*UpdateResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.update_availability")
	defer span.End()
	span.SetAttributes(attribute.String("carelane.availability_id", id.String()))

	w, err := s.windows.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *UpdateResult
	err = lock.Do(ctx, s.locker, providerKey(w.ProviderID), s.lockTTL, func(ctx context.Context) error {
		var err error
		result, err = s.update(ctx, w, in)
		return err
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, fmt.Errorf("%w: provider %s", ErrConcurrentChange, w.ProviderID)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) update(ctx context.Context, w *availability.Window, in UpdateInput) (*UpdateResult, error) {
	eligibility, err := s.validator.CanUpdateAvailability(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	validation, err := s.validator.ValidateAvailabilityUpdate(ctx, w.ID, availability.ValidateInput{
		ProviderID:            w.ProviderID,
		Start:                 in.Start,
		End:                   in.End,
		ExcludeAvailabilityID: &w.ID,
	})
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		s.metrics.ObserveValidationFailure("update")
		return &UpdateResult{Validation: validation, Eligibility: eligibility}, nil
	}

	modified := modifiedFields(w, in)
	w.Start = in.Start
	w.End = in.End
	w.Rule = in.Rule
	w.IntervalMinutes = in.IntervalMinutes
	if in.Services != nil {
		w.Services = in.Services
	}
	if in.BillingEntity != "" {
		w.BillingEntity = in.BillingEntity
	}
	if err := s.windows.Update(ctx, w); err != nil {
		return nil, fmt.Errorf("scheduler: update availability: %w", err)
	}

	result := &UpdateResult{Validation: validation, Eligibility: eligibility, Window: w}
	if len(modified) == 0 {
		return result, nil
	}

	if eligibility.BookedSlotCount == 0 && w.Status == availability.StatusAccepted {
		result.Regeneration = s.lifecycle.RegenerateSlotsForAvailability(ctx, w.ID)
	} else {
		result.Cleanup = s.lifecycle.CleanupModifiedAvailabilitySlots(ctx, w.ID, modified)
	}

	s.logger.Info("availability updated",
		"availability_id", w.ID,
		"provider_id", w.ProviderID,
		"modified_fields", modified,
	)
	return result, nil
}

func modifiedFields(w *availability.Window, in UpdateInput) []string {
	var fields []string
	if !w.Start.Equal(in.Start) {
		fields = append(fields, slots.FieldStartTime)
	}
	if !w.End.Equal(in.End) {
		fields = append(fields, slots.FieldEndTime)
	}
	if w.Rule != in.Rule {
		fields = append(fields, slots.FieldSchedulingRule)
	}
	if w.IntervalMinutes != in.IntervalMinutes {
		fields = append(fields, slots.FieldSchedulingInterval)
	}
	return fields
}

// Accept approves a pending window and generates its slots.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*slots.RegenerationResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.accept_availability")
	defer span.End()

	if err := s.windows.UpdateStatus(ctx, id, availability.StatusAccepted); err != nil {
		return nil, err
	}
	result := s.lifecycle.RegenerateSlotsForAvailability(ctx, id)
	s.logger.Info("availability accepted", "availability_id", id, "slots_created", result.SlotsCreated)
	return result, nil
}

// Reject declines a pending window and disposes of any slots it produced.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*slots.CleanupResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.reject_availability")
	defer span.End()

	if err := s.windows.UpdateStatus(ctx, id, availability.StatusRejected); err != nil {
		return nil, err
	}
	result := s.lifecycle.CleanupAvailabilitySlots(ctx, id)
	s.logger.Info("availability rejected", "availability_id", id)
	return result, nil
}

// Cancel marks a window cancelled and disposes of its slots.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*slots.CleanupResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.cancel_availability")
	defer span.End()

	if err := s.windows.UpdateStatus(ctx, id, availability.StatusCancelled); err != nil {
		return nil, err
	}
	result := s.lifecycle.CleanupAvailabilitySlots(ctx, id)
	s.logger.Info("availability cancelled",
		"availability_id", id,
		"slots_deleted", result.SlotsDeleted,
		"slots_blocked", result.SlotsMarkedUnavailable,
	)
	return result, nil
}

// CancelSeries disposes of a recurring series' slots and windows per scope.
func (s *Service) CancelSeries(ctx context.Context, seriesID uuid.UUID, scope slots.SeriesScope) (*slots.CleanupResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.cancel_series")
	defer span.End()

	result := s.lifecycle.CleanupRecurringSeriesSlots(ctx, seriesID, scope)
	s.logger.Info("recurring series cancelled",
		"series_id", seriesID,
		"scope", scope,
		"slots_deleted", result.SlotsDeleted,
	)
	return result, nil
}

// Delete removes a window after disposing of its slots. A window pinned by
// booked (blocked) slots is marked CANCELLED instead, with a warning in the
// result.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*slots.CleanupResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.delete_availability")
	defer span.End()

	result := s.lifecycle.CleanupAvailabilitySlots(ctx, id)
	if len(result.Errors) > 0 {
		return result, nil
	}

	if err := s.windows.Delete(ctx, id); err != nil {
		if errors.Is(err, availability.ErrWindowReferenced) {
			if err := s.windows.UpdateStatus(ctx, id, availability.StatusCancelled); err != nil {
				return result, err
			}
			result.Warnings = append(result.Warnings,
				"window retains booked slots and was marked cancelled instead of deleted")
			return result, nil
		}
		if !errors.Is(err, availability.ErrNotFound) {
			return result, err
		}
	}

	s.logger.Info("availability deleted", "availability_id", id)
	return result, nil
}

// Get loads one window.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*availability.Window, error) {
	return s.windows.Get(ctx, id)
}

// List returns a provider's windows intersecting the given range.
func (s *Service) List(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Window, error) {
	return s.windows.ListByProvider(ctx, providerID, from, to)
}

// Constraints exposes the fixed validation policy for display.
func (s *Service) Constraints() availability.Constraints {
	return availability.ValidationConstraints()
}

func providerKey(providerID uuid.UUID) string {
	return "provider:" + providerID.String()
}
