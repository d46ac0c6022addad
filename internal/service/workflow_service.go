package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/repository"
	"github.com/damoang/angple-workflow/pkg/cache"
	"github.com/damoang/angple-workflow/pkg/logger"
	"gorm.io/gorm"
)

// DecisionOutcome reports the state of a workflow instance after a decision.
type DecisionOutcome struct {
	Status   domain.VersionStatus         // in_review, approved or rejected
	Entry    *domain.ModerationQueueEntry // nil once terminal
	Advanced bool
}

// WorkflowService drives versions through approval workflows
type WorkflowService interface {
	// Submit starts a workflow instance for a version at the first step.
	Submit(ctx context.Context, versionID, workflowID uint64) (*domain.ModerationQueueEntry, error)
	// SubmitForContentType starts the active workflow registered for the
	// version's content type.
	SubmitForContentType(ctx context.Context, versionID uint64) (*domain.ModerationQueueEntry, error)
	// RecordDecision appends an approver's verdict and advances, holds or
	// terminates the instance. Replaying an identical decision is a no-op.
	RecordDecision(ctx context.Context, versionID, stepID uint64, userID string, verdict domain.Verdict, comment string) (*DecisionOutcome, error)
	// Decisions returns the full audit trail for a version.
	Decisions(ctx context.Context, versionID uint64) ([]*domain.Decision, error)
}

type workflowService struct {
	db         *gorm.DB
	workflows  repository.WorkflowRepository
	moderation repository.ModerationRepository
	contents   repository.ContentRepository
	versions   repository.VersionRepository
	schedules  repository.ScheduleRepository
	publisher  Publisher
	cache      cache.Service
	notifier   Notifier
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	db *gorm.DB,
	workflows repository.WorkflowRepository,
	moderation repository.ModerationRepository,
	contents repository.ContentRepository,
	versions repository.VersionRepository,
	schedules repository.ScheduleRepository,
	publisher Publisher,
	cacheSvc cache.Service,
	notifier Notifier,
) WorkflowService {
	return &workflowService{
		db:         db,
		workflows:  workflows,
		moderation: moderation,
		contents:   contents,
		versions:   versions,
		schedules:  schedules,
		publisher:  publisher,
		cache:      cacheSvc,
		notifier:   notifier,
	}
}

func (s *workflowService) Submit(ctx context.Context, versionID, workflowID uint64) (*domain.ModerationQueueEntry, error) {
	workflow, err := s.workflows.FindByID(workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, err)
	}
	if !workflow.IsActive || len(workflow.Steps) == 0 {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, common.ErrInactiveWorkflow)
	}

	version, err := s.versions.FindByID(versionID)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", versionID, err)
	}

	if _, err := s.moderation.FindEntryByVersion(versionID); err == nil {
		return nil, fmt.Errorf("version %d: %w", versionID, common.ErrAlreadyInReview)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	// Terminal verdicts stick to the version; a rejected or published body
	// re-enters review only as a fresh version.
	if version.Status != domain.VersionDraft {
		return nil, fmt.Errorf("version %d is %s, only draft versions can be submitted: %w",
			versionID, version.Status, common.ErrValidation)
	}

	firstStep := workflow.Steps[0]
	approvers, err := s.resolveApprovers(ctx, s.workflows, &firstStep)
	if err != nil {
		return nil, err
	}

	entry := &domain.ModerationQueueEntry{
		VersionID:        versionID,
		WorkflowID:       workflowID,
		CurrentStepID:    firstStep.ID,
		ApproverSnapshot: domain.EncodeSnapshot(approvers),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.versions.WithTx(tx).UpdateStatus(versionID, domain.VersionInReview); err != nil {
			return err
		}
		return s.moderation.WithTx(tx).CreateEntry(entry)
	})
	if err != nil {
		return nil, err
	}

	notifyAll(ctx, s.notifier, approvers, EventDecisionRequested, map[string]any{
		"version_id": versionID,
		"content_id": version.ContentID,
		"step_id":    firstStep.ID,
		"step_name":  firstStep.Name,
	})
	return entry, nil
}

func (s *workflowService) SubmitForContentType(ctx context.Context, versionID uint64) (*domain.ModerationQueueEntry, error) {
	version, err := s.versions.FindByID(versionID)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", versionID, err)
	}
	content, err := s.contents.FindByID(version.ContentID)
	if err != nil {
		return nil, fmt.Errorf("content %d: %w", version.ContentID, err)
	}
	workflow, err := s.workflows.FindActiveByContentType(content.ContentType)
	if err != nil {
		return nil, fmt.Errorf("no active workflow for content type %q: %w", content.ContentType, err)
	}
	return s.Submit(ctx, versionID, workflow.ID)
}

func (s *workflowService) RecordDecision(ctx context.Context, versionID, stepID uint64, userID string, verdict domain.Verdict, comment string) (*DecisionOutcome, error) {
	if verdict != domain.VerdictApprove && verdict != domain.VerdictReject {
		return nil, fmt.Errorf("verdict %q: %w", verdict, common.ErrValidation)
	}

	var (
		outcome  *DecisionOutcome
		deferred []func()
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		moderation := s.moderation.WithTx(tx)
		versions := s.versions.WithTx(tx)
		workflows := s.workflows.WithTx(tx)

		entry, err := moderation.FindEntryByVersionLocked(versionID)
		if errors.Is(err, common.ErrNotFound) {
			// The instance may already be terminal; an exact replay of a
			// decision that was applied earlier is idempotent, anything
			// else is genuinely lost.
			return s.replayOutcome(moderation, versions, versionID, stepID, userID, verdict, &outcome)
		}
		if err != nil {
			return err
		}

		if entry.CurrentStepID != stepID {
			if replayErr := s.replayOutcome(moderation, versions, versionID, stepID, userID, verdict, &outcome); replayErr == nil {
				return nil
			}
			return fmt.Errorf("step %d is not current for version %d: %w", stepID, versionID, common.ErrStaleDecision)
		}

		if !containsUser(entry.SnapshotUsers(), userID) {
			return fmt.Errorf("user %s on step %d: %w", userID, stepID, common.ErrNotApprover)
		}

		step, err := workflows.FindStepByID(stepID)
		if err != nil {
			return fmt.Errorf("step %d: %w", stepID, err)
		}

		prior, err := moderation.DecisionsForStep(versionID, stepID)
		if err != nil {
			return err
		}
		// Replaying the same verdict while the step is still current must
		// not re-advance the machine; return the held state untouched.
		if latest := latestVerdicts(prior); latest[userID] == verdict {
			outcome = &DecisionOutcome{Status: domain.VersionInReview, Entry: entry}
			return nil
		}

		if err := moderation.CreateDecision(&domain.Decision{
			VersionID: versionID,
			StepID:    stepID,
			UserID:    userID,
			Verdict:   verdict,
			Comment:   comment,
		}); err != nil {
			return err
		}

		version, err := versions.FindByID(versionID)
		if err != nil {
			return err
		}

		if verdict == domain.VerdictReject {
			// Rejection is terminal: remove the entry, no further steps are
			// evaluated, and resubmission requires a new version.
			if err := moderation.DeleteEntry(entry.ID); err != nil {
				return err
			}
			if err := versions.UpdateStatus(versionID, domain.VersionRejected); err != nil {
				return err
			}
			outcome = &DecisionOutcome{Status: domain.VersionRejected}
			deferred = append(deferred, func() {
				notifyAll(ctx, s.notifier, []string{version.AuthorID}, EventVersionRejected, map[string]any{
					"version_id": versionID,
					"step_id":    stepID,
					"by":         userID,
					"comment":    comment,
				})
			})
			return nil
		}

		if step.AllApproversRequired {
			decisions, err := moderation.DecisionsForStep(versionID, stepID)
			if err != nil {
				return err
			}
			if !allApproved(entry.SnapshotUsers(), latestVerdicts(decisions)) {
				outcome = &DecisionOutcome{Status: domain.VersionInReview, Entry: entry}
				return nil
			}
		}

		next, err := s.nextStep(workflows, entry.WorkflowID, step.StepOrder)
		if err != nil {
			return err
		}

		if next == nil {
			// Past the last step: terminal approval and publish-or-schedule
			// hand-off.
			if err := moderation.DeleteEntry(entry.ID); err != nil {
				return err
			}
			if err := versions.UpdateStatus(versionID, domain.VersionApproved); err != nil {
				return err
			}
			outcome = &DecisionOutcome{Status: domain.VersionApproved, Advanced: true}
			deferred = append(deferred, func() {
				s.handOff(ctx, version)
			})
			return nil
		}

		approvers, err := s.resolveApprovers(ctx, workflows, next)
		if err != nil {
			return err
		}
		// Single mutation site for the current-step pointer, inside the same
		// transaction as the decision append.
		entry.CurrentStepID = next.ID
		entry.ApproverSnapshot = domain.EncodeSnapshot(approvers)
		if err := moderation.SaveEntry(entry); err != nil {
			return err
		}
		outcome = &DecisionOutcome{Status: domain.VersionInReview, Entry: entry, Advanced: true}
		nextStep := *next
		deferred = append(deferred, func() {
			notifyAll(ctx, s.notifier, approvers, EventDecisionRequested, map[string]any{
				"version_id": versionID,
				"step_id":    nextStep.ID,
				"step_name":  nextStep.Name,
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, EventDecisionRecorded, map[string]any{
			"version_id": versionID,
			"step_id":    stepID,
			"verdict":    verdict,
		})
	}
	for _, fn := range deferred {
		fn()
	}
	return outcome, nil
}

func (s *workflowService) Decisions(_ context.Context, versionID uint64) ([]*domain.Decision, error) {
	return s.moderation.DecisionsByVersion(versionID)
}

// replayOutcome recognizes an exact replay of an already-applied decision and
// reports the version's current state instead of failing. Returns
// common.ErrNotFound when no identical decision exists.
func (s *workflowService) replayOutcome(
	moderation repository.ModerationRepository,
	versions repository.VersionRepository,
	versionID, stepID uint64, userID string, verdict domain.Verdict,
	outcome **DecisionOutcome,
) error {
	decisions, err := moderation.DecisionsForStep(versionID, stepID)
	if err != nil {
		return err
	}
	for _, d := range decisions {
		if d.UserID == userID && d.Verdict == verdict {
			version, err := versions.FindByID(versionID)
			if err != nil {
				return err
			}
			entry, _ := moderation.FindEntryByVersion(versionID)
			*outcome = &DecisionOutcome{Status: version.Status, Entry: entry}
			return nil
		}
	}
	return fmt.Errorf("no review entry for version %d: %w", versionID, common.ErrNotFound)
}

// handOff publishes immediately unless a pending schedule owns the version.
// The approval itself is already committed; a publish failure is logged with
// its context and surfaces through the run log, never as a decision error.
func (s *workflowService) handOff(ctx context.Context, version *domain.ContentVersion) {
	if s.schedules != nil {
		if _, err := s.schedules.ActivePendingByVersion(version.ID); err == nil {
			return // the trigger loop will publish at the scheduled time
		}
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, version.ContentID, version.ID); err != nil {
		log := logger.WithVersion(version.ID)
		log.Error().Err(err).Uint64("content_id", version.ContentID).Msg("publish after final approval failed")
	}
}

func (s *workflowService) nextStep(workflows repository.WorkflowRepository, workflowID uint64, afterOrder int) (*domain.WorkflowStep, error) {
	workflow, err := workflows.FindByID(workflowID)
	if err != nil {
		return nil, err
	}
	for i := range workflow.Steps {
		if workflow.Steps[i].StepOrder > afterOrder {
			return &workflow.Steps[i], nil
		}
	}
	return nil, nil
}

// resolveApprovers expands a step's approver set (direct users plus role
// members) into a user id list. Role lookups go through the cache; the
// snapshot stored on the queue entry freezes the result for the step.
func (s *workflowService) resolveApprovers(ctx context.Context, workflows repository.WorkflowRepository, step *domain.WorkflowStep) ([]string, error) {
	seen := map[string]bool{}
	var users []string

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}

	for _, a := range step.Approvers {
		switch a.Type {
		case domain.ApproverUser:
			add(a.ApproverID)
		case domain.ApproverRole:
			members, err := s.roleMembers(ctx, workflows, a.ApproverID)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				add(m)
			}
		}
	}
	sort.Strings(users)
	return users, nil
}

func (s *workflowService) roleMembers(ctx context.Context, workflows repository.WorkflowRepository, roleID string) ([]string, error) {
	if s.cache != nil {
		if members, err := s.cache.GetRoleMembers(ctx, roleID); err == nil {
			return members, nil
		}
	}
	members, err := workflows.RoleMembers(roleID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetRoleMembers(ctx, roleID, members)
	}
	return members, nil
}

// latestVerdicts keeps the last verdict per user; decisions arrive in
// insertion order.
func latestVerdicts(decisions []*domain.Decision) map[string]domain.Verdict {
	latest := make(map[string]domain.Verdict, len(decisions))
	for _, d := range decisions {
		latest[d.UserID] = d.Verdict
	}
	return latest
}

func allApproved(approvers []string, latest map[string]domain.Verdict) bool {
	for _, u := range approvers {
		if latest[u] != domain.VerdictApprove {
			return false
		}
	}
	return len(approvers) > 0
}

func containsUser(users []string, userID string) bool {
	for _, u := range users {
		if u == userID {
			return true
		}
	}
	return false
}
