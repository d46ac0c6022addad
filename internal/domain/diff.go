package domain

import "time"

// VersionDiff is a cached comparison between two immutable versions. Not
// authoritative: regenerable from the two bodies at any time, keyed by the
// (from, to) version id pair.
type VersionDiff struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	FromVersionID uint64    `gorm:"column:from_version_id;uniqueIndex:idx_diff_pair,priority:1" json:"from_version_id"`
	ToVersionID   uint64    `gorm:"column:to_version_id;uniqueIndex:idx_diff_pair,priority:2" json:"to_version_id"`
	Payload       string    `gorm:"column:payload;type:longtext" json:"payload"`
	Added         int       `gorm:"column:added" json:"added"`
	Removed       int       `gorm:"column:removed" json:"removed"`
	Modified      int       `gorm:"column:modified" json:"modified"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (VersionDiff) TableName() string {
	return "wf_version_diffs"
}
