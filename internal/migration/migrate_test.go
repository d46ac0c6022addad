package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/damoang/angple-workflow/internal/domain"
)

func TestRunCreatesSchemaAndSeedsWorkflow(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	assert.NoError(t, Run(db))

	var workflows []domain.Workflow
	assert.NoError(t, db.Preload("Steps.Approvers").Find(&workflows).Error)
	assert.Len(t, workflows, 1)
	assert.True(t, workflows[0].IsActive)
	assert.Len(t, workflows[0].Steps, 1)
	assert.Len(t, workflows[0].Steps[0].Approvers, 1)
	assert.Equal(t, domain.ApproverRole, workflows[0].Steps[0].Approvers[0].Type)

	// second run must not duplicate the seed
	assert.NoError(t, Run(db))
	var count int64
	db.Model(&domain.Workflow{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
