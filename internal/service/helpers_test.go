package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	err = db.AutoMigrate(
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
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func createTestContent(t *testing.T, db *gorm.DB, contentType string) *domain.Content {
	t.Helper()
	content := &domain.Content{Title: "Test Content", ContentType: contentType, Status: domain.ContentDraft}
	if err := db.Create(content).Error; err != nil {
		t.Fatalf("create content: %v", err)
	}
	return content
}

func createTestVersion(t *testing.T, db *gorm.DB, contentID uint64, number uint, body string) *domain.ContentVersion {
	t.Helper()
	version := &domain.ContentVersion{
		ContentID:     contentID,
		VersionNumber: number,
		Title:         fmt.Sprintf("Version %d", number),
		Body:          body,
		AuthorID:      "author1",
		Status:        domain.VersionDraft,
	}
	if err := db.Create(version).Error; err != nil {
		t.Fatalf("create version: %v", err)
	}
	return version
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	UserID  string
	Kind    EventKind
	Payload map[string]any
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, kind EventKind, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: userID, Kind: kind, Payload: payload})
}

func (n *recordingNotifier) byKind(kind EventKind) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// recordingPublisher captures publish/expire calls; Fail makes every call error.
type recordingPublisher struct {
	mu        sync.Mutex
	Fail      bool
	Published [][2]uint64 // contentID, versionID
	Expired   []uint64
}

func (p *recordingPublisher) Publish(_ context.Context, contentID, versionID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail {
		return fmt.Errorf("publish refused")
	}
	p.Published = append(p.Published, [2]uint64{contentID, versionID})
	return nil
}

func (p *recordingPublisher) Expire(_ context.Context, contentID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail {
		return fmt.Errorf("expire refused")
	}
	p.Expired = append(p.Expired, contentID)
	return nil
}

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// testDeps exposes raw handles for assertions that bypass the services.
type testDeps struct {
	db       *gorm.DB
	versions repository.VersionRepository
}
