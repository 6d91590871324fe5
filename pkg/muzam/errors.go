package muzam

import (
	"errors"

	"github.com/himanishpuri/muzam/pkg/muzam/features"
	"github.com/himanishpuri/muzam/pkg/muzam/matcher"
	"github.com/himanishpuri/muzam/pkg/muzam/rerank"
)

var (
	ErrInsufficientAudio = features.ErrInsufficientAudio
	ErrSearchFailed      = matcher.ErrSearchFailed
	ErrRerankFailure     = rerank.ErrRerankFailure

	// ErrEmptyFingerprint means the audio produced no tokens. Treat it as
	// a non-match; retrying the same audio cannot help.
	ErrEmptyFingerprint = errors.New("empty fingerprint")
	// ErrTrackExists is returned when a file's metadata names a track the
	// catalog already holds.
	ErrTrackExists = errors.New("track already exists")
)
