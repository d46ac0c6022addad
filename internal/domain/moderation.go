package domain

import (
	"encoding/json"
	"time"
)

// ModerationQueueEntry tracks which step a version is currently awaiting.
// At most one live entry exists per version; the entry is deleted when the
// workflow instance reaches a terminal state.
//
// ApproverSnapshot holds the user ids resolved (direct plus role members) when
// the entry entered the current step. Decisions are validated against the
// snapshot, so role membership changes mid-step do not affect a step already
// in progress.
type ModerationQueueEntry struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VersionID        uint64    `gorm:"column:version_id;uniqueIndex" json:"version_id"`
	WorkflowID       uint64    `gorm:"column:workflow_id;index" json:"workflow_id"`
	CurrentStepID    uint64    `gorm:"column:current_step_id" json:"current_step_id"`
	ApproverSnapshot string    `gorm:"column:approver_snapshot;size:4000" json:"approver_snapshot"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ModerationQueueEntry) TableName() string {
	return "wf_moderation_queue"
}

// SnapshotUsers decodes the approver snapshot into a user id list.
func (e *ModerationQueueEntry) SnapshotUsers() []string {
	var users []string
	if e.ApproverSnapshot == "" {
		return users
	}
	_ = json.Unmarshal([]byte(e.ApproverSnapshot), &users)
	return users
}

// EncodeSnapshot serializes an approver user id list for storage on the entry.
func EncodeSnapshot(users []string) string {
	b, err := json.Marshal(users)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Verdict of a single decision.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Decision is an approver's recorded verdict at a step. Append-only; rows are
// never mutated or deleted. When a step requires all approvers, multiple rows
// per (version, step) exist and the latest row per user wins.
type Decision struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VersionID uint64    `gorm:"column:version_id;index:idx_decision_version_step,priority:1" json:"version_id"`
	StepID    uint64    `gorm:"column:step_id;index:idx_decision_version_step,priority:2" json:"step_id"`
	UserID    string    `gorm:"column:user_id;size:64" json:"user_id"`
	Verdict   Verdict   `gorm:"column:verdict;size:8" json:"verdict"`
	Comment   string    `gorm:"column:comment;size:2000" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Decision) TableName() string {
	return "wf_decisions"
}
