package models

import "time"

// Posting is one (track, offset) entry stored under a hash value.
type Posting struct {
	TrackID    string
	TimeOffset float64
	Scheme     Scheme
}

// TrackHits aggregates the postings a lookup matched for one track.
type TrackHits struct {
	TrackID       string
	MatchCount    int
	UniqueMatches int
}

// IndexStats summarizes the size of a catalog index.
type IndexStats struct {
	Tracks         int
	Postings       int
	DistinctHashes int
}

// Track is catalog metadata owned by the storage layer.
type Track struct {
	ID         string
	Title      string
	Artist     string
	Album      string
	Year       int
	DurationMs int
	CreatedAt  time.Time
}

// RecognitionStats summarizes recorded recognition attempts.
type RecognitionStats struct {
	Total             int
	Successful        int
	SuccessRate       float64
	AverageConfidence float64
}
