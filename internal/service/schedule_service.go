package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/recurrence"
	"github.com/damoang/angple-workflow/internal/repository"
	"github.com/damoang/angple-workflow/pkg/logger"
)

// CreateScheduleRequest carries everything needed to schedule a publication
// window for a version.
type CreateScheduleRequest struct {
	ContentID   uint64
	VersionID   uint64
	PublishAt   time.Time
	UnpublishAt *time.Time
	Timezone    string
	Rule        recurrence.Rule
	// Administrative bypasses the past-date check for backfill operations.
	Administrative bool
	// Strict turns conflicting windows into an error instead of a warning.
	Strict bool
}

// TriggerResult is the outcome of acting on one due schedule.
type TriggerResult struct {
	ScheduleID uint64
	Action     domain.ScheduleAction
	Fired      bool
	Skipped    bool
	Err        error
}

// TriggerReport aggregates one sweep of the trigger loop.
type TriggerReport struct {
	Results []TriggerResult
	Fired   int
	Failed  int
	Skipped int
}

// ScheduleService manages publication schedules and executes due ones.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*domain.Schedule, error)
	GetSchedule(ctx context.Context, id uint64) (*domain.Schedule, error)
	Cancel(ctx context.Context, id uint64) error
	// PreviewOccurrences lists the instants a schedule's rule would fire at,
	// starting from its publish time.
	PreviewOccurrences(ctx context.Context, id uint64, maxCount int) ([]time.Time, error)
	Runs(ctx context.Context, scheduleID uint64) ([]*domain.ScheduleRun, error)
	// ProcessDue executes every schedule whose fire time has passed, in
	// ascending fire-time order. Safe to call concurrently from several
	// workers when a Locker is configured.
	ProcessDue(ctx context.Context, now time.Time) (*TriggerReport, error)
}

type scheduleService struct {
	db        *gorm.DB
	contents  repository.ContentRepository
	versions  repository.VersionRepository
	schedules repository.ScheduleRepository
	conflicts ConflictService
	publisher Publisher
	locker    Locker
	notifier  Notifier

	lockTTL  time.Duration
	batchMax int
}

// NewScheduleService creates a new ScheduleService. locker and notifier may be
// nil; a single-worker deployment runs without Redis. Zero lockTTL or batchMax
// fall back to defaults.
func NewScheduleService(
	db *gorm.DB,
	contents repository.ContentRepository,
	versions repository.VersionRepository,
	schedules repository.ScheduleRepository,
	conflicts ConflictService,
	publisher Publisher,
	locker Locker,
	notifier Notifier,
	lockTTL time.Duration,
	batchMax int,
) ScheduleService {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if batchMax <= 0 {
		batchMax = 100
	}
	return &scheduleService{
		db:        db,
		contents:  contents,
		versions:  versions,
		schedules: schedules,
		conflicts: conflicts,
		publisher: publisher,
		locker:    locker,
		notifier:  notifier,
		lockTTL:   lockTTL,
		batchMax:  batchMax,
	}
}

func (s *scheduleService) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*domain.Schedule, error) {
	if _, err := s.contents.FindByID(req.ContentID); err != nil {
		return nil, fmt.Errorf("content %d: %w", req.ContentID, err)
	}
	version, err := s.versions.FindByID(req.VersionID)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", req.VersionID, err)
	}
	if version.ContentID != req.ContentID {
		return nil, fmt.Errorf("version %d does not belong to content %d: %w",
			req.VersionID, req.ContentID, common.ErrValidation)
	}

	loc := time.UTC
	if req.Timezone != "" {
		if loc, err = time.LoadLocation(req.Timezone); err != nil {
			return nil, fmt.Errorf("timezone %q: %w", req.Timezone, common.ErrValidation)
		}
	}

	if !req.Administrative && req.PublishAt.Before(time.Now()) {
		return nil, fmt.Errorf("publish time %s is in the past: %w",
			req.PublishAt.Format(time.RFC3339), common.ErrValidation)
	}
	if req.UnpublishAt != nil && !req.UnpublishAt.After(req.PublishAt) {
		return nil, fmt.Errorf("unpublish time must be after publish time: %w", common.ErrValidation)
	}
	if req.Rule != nil {
		if err := recurrence.Validate(req.Rule); err != nil {
			return nil, err
		}
	}

	if _, err := s.schedules.ActivePendingByVersion(req.VersionID); err == nil {
		return nil, fmt.Errorf("version %d: %w", req.VersionID, common.ErrVersionScheduled)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	conflicts, err := s.conflicts.DetectConflicts(ctx, req.ContentID, req.PublishAt, req.UnpublishAt, 0)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if req.Strict {
			msgs := make([]string, 0, len(conflicts))
			for _, c := range conflicts {
				msgs = append(msgs, c.Message)
			}
			return nil, fmt.Errorf("%s: %w", strings.Join(msgs, "; "), common.ErrScheduleConflict)
		}
		notifyAll(ctx, s.notifier, []string{version.AuthorID}, EventScheduleConflict, map[string]any{
			"content_id": req.ContentID,
			"version_id": req.VersionID,
			"conflicts":  conflicts,
		})
	}

	encoded := recurrence.Encode(req.Rule)
	schedule := &domain.Schedule{
		ContentID:      req.ContentID,
		VersionID:      req.VersionID,
		Action:         domain.ActionPublish,
		PublishAt:      req.PublishAt,
		UnpublishAt:    req.UnpublishAt,
		Timezone:       loc.String(),
		Status:         domain.SchedulePending,
		RecurFreq:      encoded.Freq,
		RecurInterval:  encoded.Interval,
		RecurDays:      encoded.Days,
		RecurMonthDays: encoded.MonthDays,
		RecurEverySec:  encoded.EverySec,
		IsActive:       true,
	}
	if err := s.schedules.Create(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *scheduleService) GetSchedule(_ context.Context, id uint64) (*domain.Schedule, error) {
	return s.schedules.FindByID(id)
}

func (s *scheduleService) Cancel(_ context.Context, id uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		schedules := s.schedules.WithTx(tx)
		schedule, err := schedules.FindByIDLocked(id)
		if err != nil {
			return fmt.Errorf("schedule %d: %w", id, err)
		}
		if schedule.Status != domain.SchedulePending {
			return fmt.Errorf("schedule %d is %s, only pending schedules can be cancelled: %w",
				id, schedule.Status, common.ErrValidation)
		}
		schedule.Status = domain.ScheduleCancelled
		schedule.IsActive = false
		return schedules.Save(schedule)
	})
}

func (s *scheduleService) PreviewOccurrences(_ context.Context, id uint64, maxCount int) ([]time.Time, error) {
	schedule, err := s.schedules.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("schedule %d: %w", id, err)
	}
	rule, err := recurrence.Decode(recurrence.Encoded{
		Freq:      schedule.RecurFreq,
		Interval:  schedule.RecurInterval,
		Days:      schedule.RecurDays,
		MonthDays: schedule.RecurMonthDays,
		EverySec:  schedule.RecurEverySec,
	})
	if err != nil {
		return nil, err
	}
	loc := s.location(schedule)
	if rule == nil {
		return []time.Time{schedule.PublishAt.In(loc)}, nil
	}
	return recurrence.Occurrences(rule, schedule.PublishAt, loc, schedule.RecurUntil, maxCount), nil
}

func (s *scheduleService) Runs(_ context.Context, scheduleID uint64) ([]*domain.ScheduleRun, error) {
	return s.schedules.RunsBySchedule(scheduleID)
}

func (s *scheduleService) ProcessDue(ctx context.Context, now time.Time) (*TriggerReport, error) {
	started := time.Now()
	defer func() {
		scheduleRunDuration.Observe(time.Since(started).Seconds())
	}()

	due, err := s.schedules.Due(now, s.batchMax)
	if err != nil {
		return nil, err
	}

	report := &TriggerReport{}
	for _, schedule := range due {
		result := s.processOne(ctx, schedule.ID, now)
		report.Results = append(report.Results, result)
		switch {
		case result.Skipped:
			report.Skipped++
			schedulesSkippedTotal.Inc()
		case result.Err != nil:
			report.Failed++
			schedulesFailedTotal.WithLabelValues(string(result.Action)).Inc()
		case result.Fired:
			report.Fired++
			schedulesFiredTotal.WithLabelValues(string(result.Action)).Inc()
		}
	}
	return report, nil
}

// processOne executes a single due schedule under its distributed lock. The
// cancellation re-check happens after the row lock is held so a cancel racing
// the trigger loop can never fire.
func (s *scheduleService) processOne(ctx context.Context, scheduleID uint64, now time.Time) TriggerResult {
	result := TriggerResult{ScheduleID: scheduleID}

	if s.locker != nil {
		key := fmt.Sprintf("wf:schedule:lock:%d", scheduleID)
		release, acquired, err := s.locker.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			logger.Warn("schedule %d: lock error, proceeding without lock: %v", scheduleID, err)
		} else if !acquired {
			result.Skipped = true
			return result
		} else {
			defer release(ctx)
		}
	}

	var execErr error
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		schedules := s.schedules.WithTx(tx)
		schedule, err := schedules.FindByIDLocked(scheduleID)
		if err != nil {
			return err
		}
		if schedule.Status != domain.SchedulePending || schedule.FireAt().After(now) {
			// Cancelled or already handled by another worker between the due
			// query and the row lock.
			result.Skipped = true
			return nil
		}
		result.Action = schedule.Action

		execErr = s.execute(ctx, schedule)

		run := &domain.ScheduleRun{
			ScheduleID: schedule.ID,
			Action:     schedule.Action,
			RanAt:      now,
			Success:    execErr == nil,
		}
		if execErr != nil {
			run.Error = execErr.Error()
		}
		if err := schedules.CreateRun(run); err != nil {
			return err
		}

		if execErr != nil {
			return s.recordFailure(schedules, schedule, now, execErr)
		}
		result.Fired = true
		return s.advance(schedules, schedule, now)
	})
	if txErr != nil {
		result.Err = txErr
		return result
	}
	if execErr != nil {
		result.Err = execErr
	}

	log := logger.WithSchedule(scheduleID)
	if result.Fired {
		log.Info().Str("action", string(result.Action)).Msg("schedule fired")
		s.notifyAuthor(ctx, scheduleID, EventScheduleExecuted, result)
	} else if result.Err != nil {
		log.Error().Err(result.Err).Str("action", string(result.Action)).Msg("schedule failed")
		s.notifyAuthor(ctx, scheduleID, EventScheduleFailed, result)
	}
	return result
}

func (s *scheduleService) notifyAuthor(ctx context.Context, scheduleID uint64, kind EventKind, result TriggerResult) {
	if s.notifier == nil {
		return
	}
	schedule, err := s.schedules.FindByID(scheduleID)
	if err != nil {
		return
	}
	version, err := s.versions.FindByID(schedule.VersionID)
	if err != nil {
		return
	}
	payload := map[string]any{
		"schedule_id": scheduleID,
		"content_id":  schedule.ContentID,
		"version_id":  schedule.VersionID,
		"action":      result.Action,
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	notifyAll(ctx, s.notifier, []string{version.AuthorID}, kind, payload)
}

func (s *scheduleService) execute(ctx context.Context, schedule *domain.Schedule) error {
	switch schedule.Action {
	case domain.ActionPublish:
		return s.publisher.Publish(ctx, schedule.ContentID, schedule.VersionID)
	case domain.ActionUnpublish:
		return s.publisher.Expire(ctx, schedule.ContentID)
	}
	return fmt.Errorf("unknown schedule action %q: %w", schedule.Action, common.ErrValidation)
}

// advance moves a schedule to its next state after a successful fire: the
// unpublish leg of a windowed schedule, the next recurrence instant, or
// completed.
func (s *scheduleService) advance(schedules repository.ScheduleRepository, schedule *domain.Schedule, now time.Time) error {
	schedule.LastRunAt = &now

	if schedule.Action == domain.ActionPublish && schedule.UnpublishAt != nil {
		schedule.Action = domain.ActionUnpublish
		next := *schedule.UnpublishAt
		schedule.NextRunAt = &next
		return schedules.Save(schedule)
	}

	if schedule.Recurring() {
		done, err := s.advanceRecurrence(schedule)
		if err != nil {
			return err
		}
		if done {
			schedule.Status = domain.ScheduleCompleted
			schedule.IsActive = false
			schedule.NextRunAt = nil
		}
		return schedules.Save(schedule)
	}

	schedule.Status = domain.ScheduleCompleted
	schedule.IsActive = false
	schedule.NextRunAt = nil
	return schedules.Save(schedule)
}

// advanceRecurrence moves a recurring schedule to its next occurrence. The
// rule always advances the publish leg: a windowed schedule steps from its
// publish time and shifts the unpublish time by the same delta, so the window
// keeps its duration and never drifts onto the unpublish instant. Reports
// done=true once the next occurrence would pass RecurUntil.
func (s *scheduleService) advanceRecurrence(schedule *domain.Schedule) (bool, error) {
	rule, err := recurrence.Decode(recurrence.Encoded{
		Freq:      schedule.RecurFreq,
		Interval:  schedule.RecurInterval,
		Days:      schedule.RecurDays,
		MonthDays: schedule.RecurMonthDays,
		EverySec:  schedule.RecurEverySec,
	})
	if err != nil {
		return false, err
	}

	base := schedule.FireAt()
	if schedule.UnpublishAt != nil {
		base = schedule.PublishAt
	}
	next := recurrence.Next(rule, base, s.location(schedule))
	if schedule.RecurUntil != nil && next.After(*schedule.RecurUntil) {
		return true, nil
	}

	if schedule.UnpublishAt != nil {
		shifted := schedule.UnpublishAt.Add(next.Sub(schedule.PublishAt))
		schedule.UnpublishAt = &shifted
		schedule.PublishAt = next
	}
	schedule.Action = domain.ActionPublish
	schedule.NextRunAt = &next
	return false, nil
}

// recordFailure applies the failure policy: a one-shot schedule stays pending
// so the next sweep retries it, a recurring schedule logs the miss and moves
// on to its next occurrence.
func (s *scheduleService) recordFailure(schedules repository.ScheduleRepository, schedule *domain.Schedule, now time.Time, execErr error) error {
	if !schedule.Recurring() {
		// Left pending on purpose; repeated failures surface through the run
		// log and the failure counter.
		return nil
	}

	schedule.LastRunAt = &now
	done, err := s.advanceRecurrence(schedule)
	if err != nil {
		return err
	}
	if done {
		schedule.Status = domain.ScheduleFailed
		schedule.IsActive = false
		schedule.NextRunAt = nil
		return schedules.Save(schedule)
	}
	logger.Warn("schedule %d: occurrence missed (%v), advanced to %s",
		schedule.ID, execErr, schedule.NextRunAt.Format(time.RFC3339))
	return schedules.Save(schedule)
}

func (s *scheduleService) location(schedule *domain.Schedule) *time.Location {
	if schedule.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
