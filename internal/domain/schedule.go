package domain

import "time"

// ScheduleStatus lifecycle of a schedule record.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleCancelled ScheduleStatus = "cancelled"
	ScheduleFailed    ScheduleStatus = "failed"
)

// ScheduleAction is the operation the trigger loop performs when a schedule
// comes due. A schedule created with an unpublish time fires publish first,
// then flips its action to unpublish and stays pending until the second fire.
type ScheduleAction string

const (
	ActionPublish   ScheduleAction = "publish"
	ActionUnpublish ScheduleAction = "unpublish"
)

// Schedule is a time-bound instruction to publish or unpublish a version,
// optionally recurring. Recurrence columns are the flat encoding of a
// recurrence.Rule; empty RecurFreq means one-shot.
//
// NextRunAt is the next instant the trigger loop should act on, recomputed
// after every firing for recurring schedules. It is only ever mutated inside
// the transaction that also appends the corresponding ScheduleRun.
type Schedule struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ContentID   uint64         `gorm:"column:content_id;index" json:"content_id"`
	VersionID   uint64         `gorm:"column:version_id;index" json:"version_id"`
	Action      ScheduleAction `gorm:"column:action;size:16" json:"action"`
	PublishAt   time.Time      `gorm:"column:publish_at;index" json:"publish_at"`
	UnpublishAt *time.Time     `gorm:"column:unpublish_at" json:"unpublish_at,omitempty"`
	Timezone    string         `gorm:"column:timezone;size:64" json:"timezone"`
	Status      ScheduleStatus `gorm:"column:status;size:16;index" json:"status"`

	RecurFreq      string     `gorm:"column:recur_freq;size:16" json:"recur_freq,omitempty"`
	RecurInterval  int        `gorm:"column:recur_interval" json:"recur_interval,omitempty"`
	RecurDays      string     `gorm:"column:recur_days;size:64" json:"recur_days,omitempty"`
	RecurMonthDays string     `gorm:"column:recur_month_days;size:128" json:"recur_month_days,omitempty"`
	RecurEverySec  int64      `gorm:"column:recur_every_sec" json:"recur_every_sec,omitempty"`
	RecurUntil     *time.Time `gorm:"column:recur_until" json:"recur_until,omitempty"`

	NextRunAt *time.Time `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`
	LastRunAt *time.Time `gorm:"column:last_run_at" json:"last_run_at,omitempty"`
	IsActive  bool       `gorm:"column:is_active" json:"is_active"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Schedule) TableName() string {
	return "wf_schedules"
}

// Recurring reports whether the schedule carries a recurrence rule.
func (s *Schedule) Recurring() bool {
	return s.RecurFreq != ""
}

// FireAt returns the instant the trigger loop compares against now.
func (s *Schedule) FireAt() time.Time {
	if s.NextRunAt != nil {
		return *s.NextRunAt
	}
	return s.PublishAt
}

// ScheduleRun is the audit record of one trigger execution, appended in the
// same transaction that mutates the schedule.
type ScheduleRun struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ScheduleID uint64         `gorm:"column:schedule_id;index" json:"schedule_id"`
	Action     ScheduleAction `gorm:"column:action;size:16" json:"action"`
	RanAt      time.Time      `gorm:"column:ran_at" json:"ran_at"`
	Success    bool           `gorm:"column:success" json:"success"`
	Error      string         `gorm:"column:error;size:2000" json:"error,omitempty"`
}

func (ScheduleRun) TableName() string {
	return "wf_schedule_runs"
}
