package service

import (
	"context"
	"fmt"
	"time"

	"github.com/damoang/angple-workflow/internal/repository"
)

// Conflict describes an overlap between a proposed publication window and an
// existing pending schedule for the same content.
type Conflict struct {
	ScheduleID     uint64     `json:"schedule_id"`
	Type           string     `json:"type"`
	Message        string     `json:"message"`
	SuggestedStart *time.Time `json:"suggested_start,omitempty"`
}

// ConflictService checks proposed publication windows against pending
// schedules before they are created.
type ConflictService interface {
	// DetectConflicts returns every pending schedule of the content whose
	// publication window overlaps [start, end). A nil end means the window
	// stays open until unpublished. excludeID skips a schedule being edited.
	DetectConflicts(ctx context.Context, contentID uint64, start time.Time, end *time.Time, excludeID uint64) ([]Conflict, error)
}

type conflictService struct {
	schedules repository.ScheduleRepository
}

// NewConflictService creates a new ConflictService
func NewConflictService(schedules repository.ScheduleRepository) ConflictService {
	return &conflictService{schedules: schedules}
}

func (s *conflictService) DetectConflicts(_ context.Context, contentID uint64, start time.Time, end *time.Time, excludeID uint64) ([]Conflict, error) {
	overlapping, err := s.schedules.OverlappingPending(contentID, start, end, excludeID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]Conflict, 0, len(overlapping))
	for _, sched := range overlapping {
		c := Conflict{
			ScheduleID: sched.ID,
			Type:       "overlap",
		}
		if sched.UnpublishAt != nil {
			c.Message = fmt.Sprintf(
				"content %d is already scheduled from %s to %s (schedule %d)",
				contentID,
				sched.PublishAt.Format(time.RFC3339),
				sched.UnpublishAt.Format(time.RFC3339),
				sched.ID,
			)
			// Earliest start that cannot overlap the existing window.
			suggested := sched.UnpublishAt.Add(time.Minute)
			c.SuggestedStart = &suggested
		} else {
			c.Type = "open_ended"
			c.Message = fmt.Sprintf(
				"content %d is already scheduled from %s with no unpublish time (schedule %d)",
				contentID,
				sched.PublishAt.Format(time.RFC3339),
				sched.ID,
			)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}
