package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/repository"
)

func setupVersionService(t *testing.T) (VersionService, *recordingNotifier, *testDeps) {
	t.Helper()
	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	contents := repository.NewContentRepository(db)
	versions := repository.NewVersionRepository(db)
	svc := NewVersionService(db, contents, versions, notifier)
	return svc, notifier, &testDeps{db: db, versions: versions}
}

func TestCreateVersionSequence(t *testing.T) {
	svc, _, _ := setupVersionService(t)
	ctx := context.Background()

	content, err := svc.CreateContent(ctx, "Launch post", "article")
	assert.NoError(t, err)

	v1, err := svc.CreateVersion(ctx, content.ID, "Draft", "first body", "", "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint(1), v1.VersionNumber)
	assert.Equal(t, domain.VersionDraft, v1.Status)

	v2, err := svc.CreateVersion(ctx, content.ID, "Draft", "second body", "", "alice")
	assert.NoError(t, err)
	assert.Equal(t, uint(2), v2.VersionNumber)

	// sequence is per content
	other, err := svc.CreateContent(ctx, "Another", "article")
	assert.NoError(t, err)
	ov1, err := svc.CreateVersion(ctx, other.ID, "Draft", "body", "", "bob")
	assert.NoError(t, err)
	assert.Equal(t, uint(1), ov1.VersionNumber)
}

func TestCreateVersionUnknownContent(t *testing.T) {
	svc, _, _ := setupVersionService(t)

	_, err := svc.CreateVersion(context.Background(), 999, "Draft", "body", "", "alice")

	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRestoreVersionCreatesNewVersion(t *testing.T) {
	svc, _, _ := setupVersionService(t)
	ctx := context.Background()

	content, _ := svc.CreateContent(ctx, "Post", "article")
	v1, _ := svc.CreateVersion(ctx, content.ID, "Original", "old body", "", "alice")
	_, _ = svc.CreateVersion(ctx, content.ID, "Newer", "new body", "", "alice")

	restored, err := svc.RestoreVersion(ctx, v1.ID, "bob")
	assert.NoError(t, err)

	assert.Equal(t, uint(3), restored.VersionNumber)
	assert.Equal(t, "old body", restored.Body)
	assert.Equal(t, "Original (restored)", restored.Title)
	assert.NotNil(t, restored.RestoredFrom)
	assert.Equal(t, v1.ID, *restored.RestoredFrom)
	assert.Equal(t, "bob", restored.AuthorID)

	// the back-reference is written with the insert, not patched afterwards
	row, err := svc.GetVersion(ctx, restored.ID)
	assert.NoError(t, err)
	assert.NotNil(t, row.RestoredFrom)
	assert.Equal(t, v1.ID, *row.RestoredFrom)

	// source untouched
	source, err := svc.GetVersion(ctx, v1.ID)
	assert.NoError(t, err)
	assert.Equal(t, "old body", source.Body)
	assert.Nil(t, source.RestoredFrom)
}

func TestPublishKeepsSinglePublishedVersion(t *testing.T) {
	svc, notifier, deps := setupVersionService(t)
	ctx := context.Background()

	content, _ := svc.CreateContent(ctx, "Post", "article")
	v1, _ := svc.CreateVersion(ctx, content.ID, "One", "a", "", "alice")
	v2, _ := svc.CreateVersion(ctx, content.ID, "Two", "b", "", "alice")

	assert.NoError(t, svc.Publish(ctx, content.ID, v1.ID))
	assert.NoError(t, svc.Publish(ctx, content.ID, v2.ID))

	var published []domain.ContentVersion
	deps.db.Where("content_id = ? AND status = ?", content.ID, domain.VersionPublished).Find(&published)
	assert.Len(t, published, 1)
	assert.Equal(t, v2.ID, published[0].ID)

	var reloaded domain.Content
	deps.db.First(&reloaded, content.ID)
	assert.Equal(t, domain.ContentPublished, reloaded.Status)
	assert.Equal(t, v2.ID, *reloaded.CurrentVersionID)

	assert.Len(t, notifier.byKind(EventVersionPublished), 2)
}

func TestPublishRejectsForeignVersion(t *testing.T) {
	svc, _, _ := setupVersionService(t)
	ctx := context.Background()

	contentA, _ := svc.CreateContent(ctx, "A", "article")
	contentB, _ := svc.CreateContent(ctx, "B", "article")
	vB, _ := svc.CreateVersion(ctx, contentB.ID, "B1", "body", "", "alice")

	err := svc.Publish(ctx, contentA.ID, vB.ID)

	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestExpireClearsPublishedPointer(t *testing.T) {
	svc, _, deps := setupVersionService(t)
	ctx := context.Background()

	content, _ := svc.CreateContent(ctx, "Post", "article")
	v1, _ := svc.CreateVersion(ctx, content.ID, "One", "a", "", "alice")
	assert.NoError(t, svc.Publish(ctx, content.ID, v1.ID))

	assert.NoError(t, svc.Expire(ctx, content.ID))

	var reloaded domain.Content
	deps.db.First(&reloaded, content.ID)
	assert.Equal(t, domain.ContentDraft, reloaded.Status)
	assert.Nil(t, reloaded.CurrentVersionID)

	demoted, _ := svc.GetVersion(ctx, v1.ID)
	assert.Equal(t, domain.VersionApproved, demoted.Status)
}

func TestTimelineNewestFirst(t *testing.T) {
	svc, _, _ := setupVersionService(t)
	ctx := context.Background()

	content, _ := svc.CreateContent(ctx, "Post", "article")
	for i := 0; i < 3; i++ {
		_, err := svc.CreateVersion(ctx, content.ID, "T", "body", "", "alice")
		assert.NoError(t, err)
	}

	timeline, err := svc.Timeline(ctx, content.ID)
	assert.NoError(t, err)
	assert.Len(t, timeline, 3)
	assert.Equal(t, uint(3), timeline[0].VersionNumber)
	assert.Equal(t, uint(1), timeline[2].VersionNumber)
}

func TestCleanupOldVersionsProtectsPublished(t *testing.T) {
	svc, _, deps := setupVersionService(t)
	ctx := context.Background()

	content, _ := svc.CreateContent(ctx, "Post", "article")
	v1, _ := svc.CreateVersion(ctx, content.ID, "1", "a", "", "alice")
	for i := 0; i < 4; i++ {
		_, _ = svc.CreateVersion(ctx, content.ID, "n", "b", "", "alice")
	}
	assert.NoError(t, svc.Publish(ctx, content.ID, v1.ID))

	deleted, err := svc.CleanupOldVersions(ctx, content.ID, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted) // 5 total, keep newest 2, protect published v1

	var remaining []domain.ContentVersion
	deps.db.Where("content_id = ?", content.ID).Find(&remaining)
	assert.Len(t, remaining, 3)

	stillThere, err := svc.GetVersion(ctx, v1.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.VersionPublished, stillThere.Status)
}

func TestCleanupOldVersionsValidatesKeep(t *testing.T) {
	svc, _, _ := setupVersionService(t)

	_, err := svc.CleanupOldVersions(context.Background(), 1, 0)

	assert.True(t, errors.Is(err, common.ErrValidation))
}
