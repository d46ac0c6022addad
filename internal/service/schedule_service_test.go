package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/recurrence"
	"github.com/damoang/angple-workflow/internal/repository"
)

type scheduleFixture struct {
	db        *gorm.DB
	svc       ScheduleService
	publisher *recordingPublisher
	notifier  *recordingNotifier
	content   *domain.Content
	version   *domain.ContentVersion
}

func setupScheduleService(t *testing.T) *scheduleFixture {
	t.Helper()
	db := setupTestDB(t)
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}

	contents := repository.NewContentRepository(db)
	versions := repository.NewVersionRepository(db)
	schedules := repository.NewScheduleRepository(db)
	svc := NewScheduleService(db, contents, versions, schedules,
		NewConflictService(schedules), publisher, nil, notifier, 0, 0)

	content := createTestContent(t, db, "article")
	version := createTestVersion(t, db, content.ID, 1, "body")

	return &scheduleFixture{
		db:        db,
		svc:       svc,
		publisher: publisher,
		notifier:  notifier,
		content:   content,
		version:   version,
	}
}

func (f *scheduleFixture) request(publishAt time.Time) CreateScheduleRequest {
	return CreateScheduleRequest{
		ContentID: f.content.ID,
		VersionID: f.version.ID,
		PublishAt: publishAt,
	}
}

func reloadSchedule(t *testing.T, db *gorm.DB, id uint64) *domain.Schedule {
	t.Helper()
	var schedule domain.Schedule
	if err := db.First(&schedule, id).Error; err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	return &schedule
}

func TestCreateScheduleValidations(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	// unknown content
	req := f.request(future)
	req.ContentID = 999
	_, err := f.svc.CreateSchedule(ctx, req)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	// version belonging to a different content
	other := createTestContent(t, f.db, "article")
	req = f.request(future)
	req.ContentID = other.ID
	_, err = f.svc.CreateSchedule(ctx, req)
	assert.True(t, errors.Is(err, common.ErrValidation))

	// past publish time
	_, err = f.svc.CreateSchedule(ctx, f.request(time.Now().Add(-time.Hour)))
	assert.True(t, errors.Is(err, common.ErrValidation))

	// unpublish before publish
	req = f.request(future)
	req.UnpublishAt = timePtr(future.Add(-time.Minute))
	_, err = f.svc.CreateSchedule(ctx, req)
	assert.True(t, errors.Is(err, common.ErrValidation))

	// unknown timezone
	req = f.request(future)
	req.Timezone = "Mars/Olympus"
	_, err = f.svc.CreateSchedule(ctx, req)
	assert.True(t, errors.Is(err, common.ErrValidation))

	// invalid recurrence rule
	req = f.request(future)
	req.Rule = recurrence.Every{}
	_, err = f.svc.CreateSchedule(ctx, req)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestCreateScheduleAdministrativeBackfill(t *testing.T) {
	f := setupScheduleService(t)

	req := f.request(time.Now().Add(-time.Hour))
	req.Administrative = true

	schedule, err := f.svc.CreateSchedule(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, domain.SchedulePending, schedule.Status)
}

func TestCreateScheduleRejectsDoubleScheduledVersion(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	_, err := f.svc.CreateSchedule(ctx, f.request(time.Now().Add(time.Hour)))
	assert.NoError(t, err)

	_, err = f.svc.CreateSchedule(ctx, f.request(time.Now().Add(2*time.Hour)))
	assert.True(t, errors.Is(err, common.ErrVersionScheduled))
}

func TestCreateScheduleStrictConflict(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	req := f.request(base)
	req.UnpublishAt = timePtr(base.Add(2 * time.Hour))
	_, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	v2 := createTestVersion(t, f.db, f.content.ID, 2, "other body")
	overlap := CreateScheduleRequest{
		ContentID: f.content.ID,
		VersionID: v2.ID,
		PublishAt: base.Add(time.Hour),
		Strict:    true,
	}
	_, err = f.svc.CreateSchedule(ctx, overlap)
	assert.True(t, errors.Is(err, common.ErrScheduleConflict))

	// non-strict: created, author warned
	overlap.Strict = false
	schedule, err := f.svc.CreateSchedule(ctx, overlap)
	assert.NoError(t, err)
	assert.NotZero(t, schedule.ID)
	assert.Len(t, f.notifier.byKind(EventScheduleConflict), 1)
}

func TestProcessDueFiresOneShot(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	req := f.request(time.Now().Add(-time.Minute))
	req.Administrative = true
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, [][2]uint64{{f.content.ID, f.version.ID}}, f.publisher.Published)

	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.ScheduleCompleted, reloaded.Status)
	assert.False(t, reloaded.IsActive)
	assert.NotNil(t, reloaded.LastRunAt)

	runs, err := f.svc.Runs(ctx, schedule.ID)
	assert.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, domain.ActionPublish, runs[0].Action)
}

func TestProcessDueNothingDue(t *testing.T) {
	f := setupScheduleService(t)

	_, err := f.svc.CreateSchedule(context.Background(), f.request(time.Now().Add(time.Hour)))
	assert.NoError(t, err)

	report, err := f.svc.ProcessDue(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, f.publisher.Published)
}

func TestProcessDuePublishUnpublishChain(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	req := f.request(time.Now().Add(-2 * time.Hour))
	req.UnpublishAt = timePtr(time.Now().Add(-time.Hour))
	req.Administrative = true
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	// first sweep publishes and arms the unpublish leg
	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)

	mid := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.SchedulePending, mid.Status)
	assert.Equal(t, domain.ActionUnpublish, mid.Action)
	assert.NotNil(t, mid.NextRunAt)

	// second sweep unpublishes and completes
	report, err = f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, []uint64{f.content.ID}, f.publisher.Expired)

	done := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.ScheduleCompleted, done.Status)

	runs, _ := f.svc.Runs(ctx, schedule.ID)
	assert.Len(t, runs, 2)
	assert.Equal(t, domain.ActionPublish, runs[0].Action)
	assert.Equal(t, domain.ActionUnpublish, runs[1].Action)
}

func TestProcessDueOrdersByFireTime(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	// later publish for a second content
	otherContent := createTestContent(t, f.db, "article")
	otherVersion := createTestVersion(t, f.db, otherContent.ID, 1, "body")
	later := CreateScheduleRequest{
		ContentID:      otherContent.ID,
		VersionID:      otherVersion.ID,
		PublishAt:      time.Now().Add(-time.Hour),
		Administrative: true,
	}
	_, err := f.svc.CreateSchedule(ctx, later)
	assert.NoError(t, err)

	// earlier publish created second
	req := f.request(time.Now().Add(-2 * time.Hour))
	req.Administrative = true
	_, err = f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Fired)

	// earliest fire time executes first regardless of insertion order
	assert.Equal(t, [][2]uint64{
		{f.content.ID, f.version.ID},
		{otherContent.ID, otherVersion.ID},
	}, f.publisher.Published)
}

func TestCancelledScheduleNeverFires(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	req := f.request(time.Now().Add(-time.Minute))
	req.Administrative = true
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	assert.NoError(t, f.svc.Cancel(ctx, schedule.ID))

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, f.publisher.Published)

	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.ScheduleCancelled, reloaded.Status)
}

func TestCancelRequiresPending(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	req := f.request(time.Now().Add(-time.Minute))
	req.Administrative = true
	schedule, _ := f.svc.CreateSchedule(ctx, req)
	_, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)

	err = f.svc.Cancel(ctx, schedule.ID)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestProcessDueRecurringAdvances(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	req := f.request(start)
	req.Administrative = true
	req.Rule = recurrence.Daily{Interval: 1}
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)

	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.SchedulePending, reloaded.Status)
	assert.NotNil(t, reloaded.NextRunAt)
	assert.WithinDuration(t, start.Add(24*time.Hour), *reloaded.NextRunAt, time.Minute)

	// not due again until tomorrow
	report, err = f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestProcessDueRecurringWindowKeepsPublishCadence(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	pub := time.Now().Add(-3 * time.Hour)
	unpub := pub.Add(time.Hour)

	req := f.request(pub)
	req.UnpublishAt = timePtr(unpub)
	req.Administrative = true
	req.Rule = recurrence.Daily{Interval: 1}
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	// day-0 window: publish leg, then unpublish leg
	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	report, err = f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	assert.Len(t, f.publisher.Published, 1)
	assert.Len(t, f.publisher.Expired, 1)

	// the rule steps from the publish leg, and the whole window shifts:
	// tomorrow publishes at the original hour, not at the unpublish hour
	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.SchedulePending, reloaded.Status)
	assert.Equal(t, domain.ActionPublish, reloaded.Action)
	assert.NotNil(t, reloaded.NextRunAt)
	assert.WithinDuration(t, pub.Add(24*time.Hour), *reloaded.NextRunAt, time.Minute)
	assert.WithinDuration(t, pub.Add(24*time.Hour), reloaded.PublishAt, time.Minute)
	assert.NotNil(t, reloaded.UnpublishAt)
	assert.WithinDuration(t, unpub.Add(24*time.Hour), *reloaded.UnpublishAt, time.Minute)

	// nothing is due until tomorrow; the window does not re-fire
	report, err = f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Len(t, f.publisher.Published, 1)
	assert.Len(t, f.publisher.Expired, 1)
}

func TestProcessDueRecurringCompletesPastUntil(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	schedule := &domain.Schedule{
		ContentID:     f.content.ID,
		VersionID:     f.version.ID,
		Action:        domain.ActionPublish,
		PublishAt:     start,
		Status:        domain.SchedulePending,
		RecurFreq:     "daily",
		RecurInterval: 1,
		RecurUntil:    timePtr(start.Add(time.Hour)), // next occurrence falls past this
		IsActive:      true,
	}
	assert.NoError(t, f.db.Create(schedule).Error)

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)

	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.ScheduleCompleted, reloaded.Status)
	assert.Nil(t, reloaded.NextRunAt)
}

func TestProcessDueOneShotFailureStaysPending(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	f.publisher.Fail = true

	req := f.request(time.Now().Add(-time.Minute))
	req.Administrative = true
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Fired)

	// left pending for retry on the next sweep
	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.SchedulePending, reloaded.Status)

	runs, _ := f.svc.Runs(ctx, schedule.ID)
	assert.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
	assert.NotEmpty(t, runs[0].Error)

	// retry succeeds once the publisher recovers
	f.publisher.Fail = false
	report, err = f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, domain.ScheduleCompleted, reloadSchedule(t, f.db, schedule.ID).Status)
}

func TestProcessDueRecurringFailureSkipsToNext(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()
	f.publisher.Fail = true
	start := time.Now().Add(-time.Minute)

	req := f.request(start)
	req.Administrative = true
	req.Rule = recurrence.Daily{Interval: 1}
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	report, err := f.svc.ProcessDue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	// the missed occurrence is not retried; the next one is armed
	reloaded := reloadSchedule(t, f.db, schedule.ID)
	assert.Equal(t, domain.SchedulePending, reloaded.Status)
	assert.NotNil(t, reloaded.NextRunAt)
	assert.WithinDuration(t, start.Add(24*time.Hour), *reloaded.NextRunAt, time.Minute)
}

func TestPreviewOccurrences(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	req := f.request(time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)) // Monday
	req.Administrative = true
	req.Rule = recurrence.Weekly{Interval: 1, Days: []time.Weekday{time.Monday, time.Thursday}}
	schedule, err := f.svc.CreateSchedule(ctx, req)
	assert.NoError(t, err)

	got, err := f.svc.PreviewOccurrences(ctx, schedule.ID, 4)
	assert.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC), got[0].UTC())
	assert.Equal(t, time.Date(2026, 9, 17, 10, 0, 0, 0, time.UTC), got[3].UTC())
}

func TestPreviewOccurrencesOneShot(t *testing.T) {
	f := setupScheduleService(t)
	ctx := context.Background()

	schedule, err := f.svc.CreateSchedule(ctx, f.request(time.Now().Add(time.Hour)))
	assert.NoError(t, err)

	got, err := f.svc.PreviewOccurrences(ctx, schedule.ID, 10)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
}
