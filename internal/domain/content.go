package domain

import "time"

// ContentStatus lifecycle state of a content record
type ContentStatus string

const (
	ContentDraft     ContentStatus = "draft"
	ContentPublished ContentStatus = "published"
	ContentArchived  ContentStatus = "archived"
)

// Content represents a logical document. The body lives in versions;
// CurrentVersionID points at the version currently published (nil while draft).
type Content struct {
	ID               uint64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title            string        `gorm:"column:title;size:255" json:"title"`
	ContentType      string        `gorm:"column:content_type;size:64;index" json:"content_type"`
	Status           ContentStatus `gorm:"column:status;size:16;index" json:"status"`
	CurrentVersionID *uint64       `gorm:"column:current_version_id" json:"current_version_id,omitempty"`
	CreatedAt        time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (Content) TableName() string {
	return "wf_contents"
}

// VersionStatus review/publication state of a single version
type VersionStatus string

const (
	VersionDraft     VersionStatus = "draft"
	VersionInReview  VersionStatus = "in_review"
	VersionApproved  VersionStatus = "approved"
	VersionRejected  VersionStatus = "rejected"
	VersionPublished VersionStatus = "published"
)

// ContentVersion is an immutable snapshot of content body and metadata.
// Only Status changes after creation; everything else is write-once.
type ContentVersion struct {
	ID            uint64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ContentID     uint64        `gorm:"column:content_id;uniqueIndex:idx_content_version,priority:1" json:"content_id"`
	VersionNumber uint          `gorm:"column:version_number;uniqueIndex:idx_content_version,priority:2" json:"version_number"`
	Title         string        `gorm:"column:title;size:255" json:"title"`
	Body          string        `gorm:"column:body;type:longtext" json:"body"`
	Notes         string        `gorm:"column:notes;size:1000" json:"notes,omitempty"`
	AuthorID      string        `gorm:"column:author_id;size:64;index" json:"author_id"`
	Status        VersionStatus `gorm:"column:status;size:16;index" json:"status"`
	RestoredFrom  *uint64       `gorm:"column:restored_from" json:"restored_from,omitempty"`
	CreatedAt     time.Time     `gorm:"column:created_at" json:"created_at"`
}

func (ContentVersion) TableName() string {
	return "wf_content_versions"
}
