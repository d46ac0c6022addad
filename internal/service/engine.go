package service

import (
	"time"

	"gorm.io/gorm"

	"github.com/damoang/angple-workflow/internal/repository"
	"github.com/damoang/angple-workflow/pkg/cache"
)

// Engine bundles the workflow engine services wired over one database. It is
// the embedding surface for host applications; the scheduler daemon uses the
// same wiring.
type Engine struct {
	Versions  VersionService
	Workflows WorkflowService
	Schedules ScheduleService
	Conflicts ConflictService
	Diffs     DiffService
}

// EngineOptions carries the optional collaborators. All fields may be zero;
// the engine then runs without caching, locking, notifications or exports.
type EngineOptions struct {
	Cache     cache.Service
	Locker    Locker
	Notifier  Notifier
	Store     ObjectStore
	LockTTL   time.Duration
	BatchSize int
}

// NewEngine wires repositories and services over db.
func NewEngine(db *gorm.DB, opts EngineOptions) *Engine {
	contents := repository.NewContentRepository(db)
	versions := repository.NewVersionRepository(db)
	workflows := repository.NewWorkflowRepository(db)
	moderation := repository.NewModerationRepository(db)
	schedules := repository.NewScheduleRepository(db)
	diffs := repository.NewDiffRepository(db)

	versionSvc := NewVersionService(db, contents, versions, opts.Notifier)
	conflictSvc := NewConflictService(schedules)

	return &Engine{
		Versions:  versionSvc,
		Workflows: NewWorkflowService(db, workflows, moderation, contents, versions, schedules, versionSvc, opts.Cache, opts.Notifier),
		Schedules: NewScheduleService(db, contents, versions, schedules, conflictSvc, versionSvc, opts.Locker, opts.Notifier, opts.LockTTL, opts.BatchSize),
		Conflicts: conflictSvc,
		Diffs:     NewDiffService(versions, diffs, opts.Cache, opts.Store),
	}
}
