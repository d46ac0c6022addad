package migration

import (
	"github.com/damoang/angple-workflow/internal/domain"
	"gorm.io/gorm"
)

// Run executes AutoMigrate for all engine tables and seeds a default workflow
// if none exists.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Content{},
		&domain.ContentVersion{},
		&domain.Workflow{},
		&domain.WorkflowStep{},
		&domain.StepApprover{},
		&domain.RoleMember{},
		&domain.ModerationQueueEntry{},
		&domain.Decision{},
		&domain.Schedule{},
		&domain.ScheduleRun{},
		&domain.VersionDiff{},
	); err != nil {
		return err
	}

	var count int64
	db.Model(&domain.Workflow{}).Count(&count)
	if count == 0 {
		return seedDefaultWorkflow(db)
	}
	return nil
}

// seedDefaultWorkflow installs a single-step editorial review chain for the
// generic article type, approved by the editor role.
func seedDefaultWorkflow(db *gorm.DB) error {
	workflow := domain.Workflow{
		Name:        "Editorial review",
		ContentType: "article",
		IsActive:    true,
		Steps: []domain.WorkflowStep{
			{
				Name:                 "Editor approval",
				StepOrder:            1,
				AllApproversRequired: false,
				Approvers: []domain.StepApprover{
					{Type: domain.ApproverRole, ApproverID: "editor"},
				},
			},
		},
	}
	return db.Create(&workflow).Error
}
