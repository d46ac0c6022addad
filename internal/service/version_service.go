package service

import (
	"context"
	"fmt"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/repository"
	"github.com/damoang/angple-workflow/pkg/logger"
	"gorm.io/gorm"
)

// Publisher is the slice of the version store the workflow and schedule
// engines need for their hand-offs.
type Publisher interface {
	Publish(ctx context.Context, contentID, versionID uint64) error
	Expire(ctx context.Context, contentID uint64) error
}

// VersionService handles content version business logic
type VersionService interface {
	Publisher
	CreateContent(ctx context.Context, title, contentType string) (*domain.Content, error)
	// CreateVersion allocates the next sequence number for the content and
	// stores an immutable snapshot.
	CreateVersion(ctx context.Context, contentID uint64, title, body, notes, authorID string) (*domain.ContentVersion, error)
	// RestoreVersion creates a new version carrying the target's body with a
	// restored_from back-reference; the original is never mutated.
	RestoreVersion(ctx context.Context, versionID uint64, userID string) (*domain.ContentVersion, error)
	GetVersion(ctx context.Context, versionID uint64) (*domain.ContentVersion, error)
	// Timeline lists a content's versions newest-first.
	Timeline(ctx context.Context, contentID uint64) ([]*domain.ContentVersion, error)
	// CleanupOldVersions deletes all but the newest keep versions, never
	// removing the currently published one. Returns rows deleted.
	CleanupOldVersions(ctx context.Context, contentID uint64, keep int) (int64, error)
}

type versionService struct {
	db       *gorm.DB
	contents repository.ContentRepository
	versions repository.VersionRepository
	notifier Notifier
}

// NewVersionService creates a new VersionService
func NewVersionService(db *gorm.DB, contents repository.ContentRepository, versions repository.VersionRepository, notifier Notifier) VersionService {
	return &versionService{db: db, contents: contents, versions: versions, notifier: notifier}
}

func (s *versionService) CreateContent(_ context.Context, title, contentType string) (*domain.Content, error) {
	content := &domain.Content{
		Title:       title,
		ContentType: contentType,
		Status:      domain.ContentDraft,
	}
	if err := s.contents.Create(content); err != nil {
		return nil, err
	}
	return content, nil
}

func (s *versionService) CreateVersion(_ context.Context, contentID uint64, title, body, notes, authorID string) (*domain.ContentVersion, error) {
	return s.create(contentID, title, body, notes, authorID, nil)
}

func (s *versionService) RestoreVersion(_ context.Context, versionID uint64, userID string) (*domain.ContentVersion, error) {
	source, err := s.versions.FindByID(versionID)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", versionID, err)
	}

	return s.create(source.ContentID,
		source.Title+" (restored)", source.Body,
		fmt.Sprintf("restored from version %d", source.VersionNumber),
		userID, &source.ID)
}

// create allocates the next sequence number and inserts the snapshot in one
// transaction, so a restore's back-reference can never be lost to a partial
// write and two concurrent submissions cannot claim the same number; the
// unique (content_id, version_number) index backstops the sequence.
func (s *versionService) create(contentID uint64, title, body, notes, authorID string, restoredFrom *uint64) (*domain.ContentVersion, error) {
	var version *domain.ContentVersion

	err := s.db.Transaction(func(tx *gorm.DB) error {
		contents := s.contents.WithTx(tx)
		versions := s.versions.WithTx(tx)

		if _, err := contents.FindByID(contentID); err != nil {
			return fmt.Errorf("content %d: %w", contentID, err)
		}

		next, err := versions.NextVersionNumber(contentID)
		if err != nil {
			return err
		}

		version = &domain.ContentVersion{
			ContentID:     contentID,
			VersionNumber: next,
			Title:         title,
			Body:          body,
			Notes:         notes,
			AuthorID:      authorID,
			Status:        domain.VersionDraft,
			RestoredFrom:  restoredFrom,
		}
		return versions.Create(version)
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (s *versionService) GetVersion(_ context.Context, versionID uint64) (*domain.ContentVersion, error) {
	return s.versions.FindByID(versionID)
}

// Publish points the content at versionID and demotes any sibling still
// marked published, keeping the at-most-one-published invariant inside a
// single transaction.
func (s *versionService) Publish(ctx context.Context, contentID, versionID uint64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		contents := s.contents.WithTx(tx)
		versions := s.versions.WithTx(tx)

		content, err := contents.FindByID(contentID)
		if err != nil {
			return fmt.Errorf("content %d: %w", contentID, err)
		}
		version, err := versions.FindByID(versionID)
		if err != nil {
			return fmt.Errorf("version %d: %w", versionID, err)
		}
		if version.ContentID != contentID {
			return fmt.Errorf("version %d does not belong to content %d: %w", versionID, contentID, common.ErrValidation)
		}

		if err := versions.DemotePublished(contentID, versionID); err != nil {
			return err
		}
		if err := versions.UpdateStatus(versionID, domain.VersionPublished); err != nil {
			return err
		}

		content.CurrentVersionID = &versionID
		content.Status = domain.ContentPublished
		return contents.Save(content)
	})
	if err != nil {
		return err
	}

	log := logger.WithVersion(versionID)
	log.Info().Uint64("content_id", contentID).Msg("version published")

	if s.notifier != nil {
		if version, verr := s.versions.FindByID(versionID); verr == nil {
			s.notifier.Notify(ctx, version.AuthorID, EventVersionPublished, map[string]any{
				"content_id": contentID,
				"version_id": versionID,
			})
		}
	}
	return nil
}

// Expire clears the published pointer and moves the content back to draft.
func (s *versionService) Expire(_ context.Context, contentID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		contents := s.contents.WithTx(tx)
		versions := s.versions.WithTx(tx)

		content, err := contents.FindByID(contentID)
		if err != nil {
			return fmt.Errorf("content %d: %w", contentID, err)
		}

		if content.CurrentVersionID != nil {
			if err := versions.UpdateStatus(*content.CurrentVersionID, domain.VersionApproved); err != nil {
				return err
			}
		}

		content.CurrentVersionID = nil
		content.Status = domain.ContentDraft
		return contents.Save(content)
	})
}

func (s *versionService) Timeline(_ context.Context, contentID uint64) ([]*domain.ContentVersion, error) {
	if _, err := s.contents.FindByID(contentID); err != nil {
		return nil, fmt.Errorf("content %d: %w", contentID, err)
	}
	return s.versions.FindByContentID(contentID)
}

func (s *versionService) CleanupOldVersions(_ context.Context, contentID uint64, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep %d: %w", keep, common.ErrValidation)
	}
	content, err := s.contents.FindByID(contentID)
	if err != nil {
		return 0, fmt.Errorf("content %d: %w", contentID, err)
	}

	var protect uint64
	if content.CurrentVersionID != nil {
		protect = *content.CurrentVersionID
	}
	return s.versions.DeleteOlderThan(contentID, keep, protect)
}
