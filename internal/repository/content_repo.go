package repository

import (
	"errors"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// ContentRepository data access for content records
type ContentRepository interface {
	WithTx(tx *gorm.DB) ContentRepository
	DB() *gorm.DB
	Create(content *domain.Content) error
	FindByID(id uint64) (*domain.Content, error)
	Save(content *domain.Content) error
}

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new ContentRepository
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) WithTx(tx *gorm.DB) ContentRepository {
	return &contentRepository{db: tx}
}

func (r *contentRepository) DB() *gorm.DB {
	return r.db
}

func (r *contentRepository) Create(content *domain.Content) error {
	return r.db.Create(content).Error
}

func (r *contentRepository) FindByID(id uint64) (*domain.Content, error) {
	var content domain.Content
	if err := r.db.First(&content, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &content, nil
}

func (r *contentRepository) Save(content *domain.Content) error {
	return r.db.Save(content).Error
}
