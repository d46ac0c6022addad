package repository

import (
	"errors"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// DiffRepository data access for cached version diffs
type DiffRepository interface {
	Create(diff *domain.VersionDiff) error
	FindByPair(fromID, toID uint64) (*domain.VersionDiff, error)
}

type diffRepository struct {
	db *gorm.DB
}

// NewDiffRepository creates a new DiffRepository
func NewDiffRepository(db *gorm.DB) DiffRepository {
	return &diffRepository{db: db}
}

func (r *diffRepository) Create(diff *domain.VersionDiff) error {
	return r.db.Create(diff).Error
}

func (r *diffRepository) FindByPair(fromID, toID uint64) (*domain.VersionDiff, error) {
	var diff domain.VersionDiff
	err := r.db.Where("from_version_id = ? AND to_version_id = ?", fromID, toID).
		First(&diff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &diff, nil
}
