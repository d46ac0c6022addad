package repository

import (
	"errors"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// ModerationRepository data access for queue entries and decisions
type ModerationRepository interface {
	WithTx(tx *gorm.DB) ModerationRepository
	DB() *gorm.DB
	CreateEntry(entry *domain.ModerationQueueEntry) error
	FindEntryByVersion(versionID uint64) (*domain.ModerationQueueEntry, error)
	// FindEntryByVersionLocked takes a row lock on the entry, serializing
	// concurrent decisions for the same version.
	FindEntryByVersionLocked(versionID uint64) (*domain.ModerationQueueEntry, error)
	SaveEntry(entry *domain.ModerationQueueEntry) error
	DeleteEntry(id uint64) error
	CreateDecision(decision *domain.Decision) error
	// DecisionsForStep returns decisions for (version, step) in insertion
	// order; latest-per-user resolution relies on this order.
	DecisionsForStep(versionID, stepID uint64) ([]*domain.Decision, error)
	DecisionsByVersion(versionID uint64) ([]*domain.Decision, error)
}

type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a new ModerationRepository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func (r *moderationRepository) WithTx(tx *gorm.DB) ModerationRepository {
	return &moderationRepository{db: tx}
}

func (r *moderationRepository) DB() *gorm.DB {
	return r.db
}

func (r *moderationRepository) CreateEntry(entry *domain.ModerationQueueEntry) error {
	return r.db.Create(entry).Error
}

func (r *moderationRepository) FindEntryByVersion(versionID uint64) (*domain.ModerationQueueEntry, error) {
	var entry domain.ModerationQueueEntry
	err := r.db.Where("version_id = ?", versionID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *moderationRepository) FindEntryByVersionLocked(versionID uint64) (*domain.ModerationQueueEntry, error) {
	var entry domain.ModerationQueueEntry
	err := lockForUpdate(r.db).
		Where("version_id = ?", versionID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *moderationRepository) SaveEntry(entry *domain.ModerationQueueEntry) error {
	return r.db.Save(entry).Error
}

func (r *moderationRepository) DeleteEntry(id uint64) error {
	return r.db.Delete(&domain.ModerationQueueEntry{}, id).Error
}

func (r *moderationRepository) CreateDecision(decision *domain.Decision) error {
	return r.db.Create(decision).Error
}

func (r *moderationRepository) DecisionsForStep(versionID, stepID uint64) ([]*domain.Decision, error) {
	var decisions []*domain.Decision
	err := r.db.Where("version_id = ? AND step_id = ?", versionID, stepID).
		Order("id ASC").
		Find(&decisions).Error
	return decisions, err
}

func (r *moderationRepository) DecisionsByVersion(versionID uint64) ([]*domain.Decision, error) {
	var decisions []*domain.Decision
	err := r.db.Where("version_id = ?", versionID).
		Order("id ASC").
		Find(&decisions).Error
	return decisions, err
}
