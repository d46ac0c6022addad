package repository

import (
	"errors"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// VersionRepository data access for immutable content versions
type VersionRepository interface {
	WithTx(tx *gorm.DB) VersionRepository
	Create(version *domain.ContentVersion) error
	FindByID(id uint64) (*domain.ContentVersion, error)
	FindByContentID(contentID uint64) ([]*domain.ContentVersion, error)
	NextVersionNumber(contentID uint64) (uint, error)
	UpdateStatus(id uint64, status domain.VersionStatus) error
	// DemotePublished moves every published sibling of contentID (except
	// keepID) back to approved, enforcing at most one published version.
	DemotePublished(contentID uint64, keepID uint64) error
	// DeleteOlderThan removes versions of contentID below keep newest,
	// never touching protectID. Returns the number of rows deleted.
	DeleteOlderThan(contentID uint64, keep int, protectID uint64) (int64, error)
}

type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func (r *versionRepository) WithTx(tx *gorm.DB) VersionRepository {
	return &versionRepository{db: tx}
}

func (r *versionRepository) Create(version *domain.ContentVersion) error {
	return r.db.Create(version).Error
}

func (r *versionRepository) FindByID(id uint64) (*domain.ContentVersion, error) {
	var version domain.ContentVersion
	if err := r.db.First(&version, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &version, nil
}

func (r *versionRepository) FindByContentID(contentID uint64) ([]*domain.ContentVersion, error) {
	var versions []*domain.ContentVersion
	err := r.db.Where("content_id = ?", contentID).
		Order("version_number DESC").
		Find(&versions).Error
	return versions, err
}

func (r *versionRepository) NextVersionNumber(contentID uint64) (uint, error) {
	var maxVersion *uint
	err := r.db.Model(&domain.ContentVersion{}).
		Where("content_id = ?", contentID).
		Select("MAX(version_number)").
		Scan(&maxVersion).Error
	if err != nil {
		return 1, err
	}
	if maxVersion == nil {
		return 1, nil
	}
	return *maxVersion + 1, nil
}

func (r *versionRepository) UpdateStatus(id uint64, status domain.VersionStatus) error {
	return r.db.Model(&domain.ContentVersion{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *versionRepository) DemotePublished(contentID uint64, keepID uint64) error {
	return r.db.Model(&domain.ContentVersion{}).
		Where("content_id = ? AND status = ? AND id <> ?", contentID, domain.VersionPublished, keepID).
		Update("status", domain.VersionApproved).Error
}

func (r *versionRepository) DeleteOlderThan(contentID uint64, keep int, protectID uint64) (int64, error) {
	var keepIDs []uint64
	err := r.db.Model(&domain.ContentVersion{}).
		Where("content_id = ?", contentID).
		Order("version_number DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return 0, err
	}
	if protectID != 0 {
		keepIDs = append(keepIDs, protectID)
	}

	res := r.db.Where("content_id = ? AND id NOT IN ?", contentID, keepIDs).
		Delete(&domain.ContentVersion{})
	return res.RowsAffected, res.Error
}
