package repository

import (
	"errors"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// WorkflowRepository data access for workflow definitions and approver sets
type WorkflowRepository interface {
	WithTx(tx *gorm.DB) WorkflowRepository
	DB() *gorm.DB
	Create(workflow *domain.Workflow) error
	// FindByID loads a workflow with its steps (ascending order) and each
	// step's approver assignments.
	FindByID(id uint64) (*domain.Workflow, error)
	FindActiveByContentType(contentType string) (*domain.Workflow, error)
	FindStepByID(stepID uint64) (*domain.WorkflowStep, error)
	RoleMembers(roleID string) ([]string, error)
}

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a new WorkflowRepository
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) WithTx(tx *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: tx}
}

func (r *workflowRepository) DB() *gorm.DB {
	return r.db
}

func (r *workflowRepository) Create(workflow *domain.Workflow) error {
	return r.db.Create(workflow).Error
}

func (r *workflowRepository) FindByID(id uint64) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := r.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Preload("Steps.Approvers").
		First(&workflow, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

func (r *workflowRepository) FindActiveByContentType(contentType string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	err := r.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Preload("Steps.Approvers").
		Where("content_type = ? AND is_active = ?", contentType, true).
		First(&workflow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

func (r *workflowRepository) FindStepByID(stepID uint64) (*domain.WorkflowStep, error) {
	var step domain.WorkflowStep
	err := r.db.Preload("Approvers").First(&step, stepID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &step, nil
}

func (r *workflowRepository) RoleMembers(roleID string) ([]string, error) {
	var users []string
	err := r.db.Model(&domain.RoleMember{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &users).Error
	return users, err
}
