package domain

import "time"

// Workflow is a named, ordered approval pipeline scoped to one content type.
type Workflow struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"column:name;size:128" json:"name"`
	ContentType string         `gorm:"column:content_type;size:64;index" json:"content_type"`
	IsActive    bool           `gorm:"column:is_active" json:"is_active"`
	Steps       []WorkflowStep `gorm:"foreignKey:WorkflowID" json:"steps,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Workflow) TableName() string {
	return "wf_workflows"
}

// WorkflowStep is one stage of a workflow. StepOrder is unique within the
// workflow and strictly increasing; advancement follows ascending order.
type WorkflowStep struct {
	ID                   uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkflowID           uint64         `gorm:"column:workflow_id;uniqueIndex:idx_workflow_step_order,priority:1" json:"workflow_id"`
	StepOrder            int            `gorm:"column:step_order;uniqueIndex:idx_workflow_step_order,priority:2" json:"step_order"`
	Name                 string         `gorm:"column:name;size:128" json:"name"`
	AllApproversRequired bool           `gorm:"column:all_approvers_required" json:"all_approvers_required"`
	Approvers            []StepApprover `gorm:"foreignKey:StepID" json:"approvers,omitempty"`
}

func (WorkflowStep) TableName() string {
	return "wf_workflow_steps"
}

// ApproverType distinguishes direct user assignment from role assignment.
type ApproverType string

const (
	ApproverUser ApproverType = "user"
	ApproverRole ApproverType = "role"
)

// StepApprover assigns a user or a role to a step's approver set.
type StepApprover struct {
	ID         uint64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StepID     uint64       `gorm:"column:step_id;index" json:"step_id"`
	Type       ApproverType `gorm:"column:approver_type;size:8" json:"type"`
	ApproverID string       `gorm:"column:approver_id;size:64" json:"approver_id"`
}

func (StepApprover) TableName() string {
	return "wf_step_approvers"
}

// RoleMember maps a role to its member users. Role administration itself is
// handled by the surrounding application; the engine only reads memberships.
type RoleMember struct {
	ID     uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RoleID string `gorm:"column:role_id;size:64;index" json:"role_id"`
	UserID string `gorm:"column:user_id;size:64;index" json:"user_id"`
}

func (RoleMember) TableName() string {
	return "wf_role_members"
}
