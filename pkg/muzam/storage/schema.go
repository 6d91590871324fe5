package storage

import "time"

// Track is catalog metadata. The index never reads it.
type Track struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Title      string `gorm:"uniqueIndex:idx_track_unique,priority:1;index:idx_track_meta,priority:1" json:"title"`
	Artist     string `gorm:"uniqueIndex:idx_track_unique,priority:2;index:idx_track_meta,priority:2" json:"artist"`
	Album      string `json:"album"`
	Year       int    `json:"year"`
	DurationMs int    `json:"duration_ms"`
	CreatedAt  time.Time
}

// IndexedTrack records catalog order: the auto-increment ID is assigned on
// a track's first insert.
type IndexedTrack struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	TrackID  string `gorm:"type:varchar(255);uniqueIndex:idx_indexed_track"`
	Postings int
}

type Posting struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	Hash       string  `gorm:"type:varchar(64);index:idx_posting_hash" json:"hash"`
	TrackID    string  `gorm:"type:varchar(255);index:idx_posting_track" json:"track_id"`
	TimeOffset float64 `json:"time_offset"`
	Scheme     uint8   `json:"scheme"`
}

// Recognition is one recorded identification attempt.
type Recognition struct {
	ID            uint `gorm:"primaryKey;autoIncrement"`
	TrackID       string
	Matched       bool
	Confidence    float64
	MatchCount    int
	UniqueMatches int
	QueryTimeMs   int64
	CreatedAt     time.Time
}
