package repository

import (
	"errors"
	"time"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// ScheduleRepository data access for schedules and their run audit log
type ScheduleRepository interface {
	WithTx(tx *gorm.DB) ScheduleRepository
	DB() *gorm.DB
	Create(schedule *domain.Schedule) error
	FindByID(id uint64) (*domain.Schedule, error)
	FindByIDLocked(id uint64) (*domain.Schedule, error)
	Save(schedule *domain.Schedule) error
	// Due returns pending schedules whose fire time is at or before now, in
	// ascending fire-time order so an earlier unpublish is never reordered
	// after a later publish for the same content.
	Due(now time.Time, limit int) ([]*domain.Schedule, error)
	// OverlappingPending returns pending schedules for contentID whose
	// [publish_at, unpublish_at) interval overlaps [start, end). A nil end
	// or a schedule without unpublish_at is treated as open-ended.
	OverlappingPending(contentID uint64, start time.Time, end *time.Time, excludeID uint64) ([]*domain.Schedule, error)
	// ActivePendingByVersion finds the pending schedule referencing a
	// version, if any (at most one may exist).
	ActivePendingByVersion(versionID uint64) (*domain.Schedule, error)
	CreateRun(run *domain.ScheduleRun) error
	RunsBySchedule(scheduleID uint64) ([]*domain.ScheduleRun, error)
}

type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) WithTx(tx *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: tx}
}

func (r *scheduleRepository) DB() *gorm.DB {
	return r.db
}

func (r *scheduleRepository) Create(schedule *domain.Schedule) error {
	return r.db.Create(schedule).Error
}

func (r *scheduleRepository) FindByID(id uint64) (*domain.Schedule, error) {
	var schedule domain.Schedule
	if err := r.db.First(&schedule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepository) FindByIDLocked(id uint64) (*domain.Schedule, error) {
	var schedule domain.Schedule
	err := lockForUpdate(r.db).First(&schedule, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepository) Save(schedule *domain.Schedule) error {
	return r.db.Save(schedule).Error
}

func (r *scheduleRepository) Due(now time.Time, limit int) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule
	q := r.db.Where("status = ? AND COALESCE(next_run_at, publish_at) <= ?", domain.SchedulePending, now).
		Order("COALESCE(next_run_at, publish_at) ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepository) OverlappingPending(contentID uint64, start time.Time, end *time.Time, excludeID uint64) ([]*domain.Schedule, error) {
	q := r.db.Where("content_id = ? AND status = ?", contentID, domain.SchedulePending).
		Where("unpublish_at IS NULL OR unpublish_at > ?", start)
	if end != nil {
		q = q.Where("publish_at < ?", *end)
	}
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var schedules []*domain.Schedule
	err := q.Order("publish_at ASC").Find(&schedules).Error
	return schedules, err
}

func (r *scheduleRepository) ActivePendingByVersion(versionID uint64) (*domain.Schedule, error) {
	var schedule domain.Schedule
	err := r.db.Where("version_id = ? AND status = ?", versionID, domain.SchedulePending).
		First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &schedule, nil
}

func (r *scheduleRepository) CreateRun(run *domain.ScheduleRun) error {
	return r.db.Create(run).Error
}

func (r *scheduleRepository) RunsBySchedule(scheduleID uint64) ([]*domain.ScheduleRun, error) {
	var runs []*domain.ScheduleRun
	err := r.db.Where("schedule_id = ?", scheduleID).
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}
