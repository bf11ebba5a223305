package downloader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gcottom/riff/internal/services/acquire"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gcottom/riff/internal/services/match"
	"github.com/gcottom/riff/internal/services/meta"
)

const (
	DefaultPlaylistConcurrency = 4
	maxFailedNames             = 5
	maxCurrentTracks           = 3
)

var ErrInvalidURL = errors.New("invalid url")

const (
	msgCredentials   = "Spotify API credentials required for playlist downloads. Please configure SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET."
	msgTrackMeta     = "Failed to fetch track metadata"
	msgVideoMeta     = "Failed to fetch video metadata"
	msgPlaylistMeta  = "Failed to fetch playlist metadata"
	msgNoMatch       = "Could not find a matching audio source for this track"
	msgAcquire       = "Failed to download and convert audio"
	msgWorkDir       = "Failed to prepare working directory"
	msgNoTracks      = "None of the playlist tracks could be downloaded"
	msgArchive       = "Failed to create ZIP file"
	msgUnexpected    = "An unexpected error occurred during conversion"
	stepFailed       = "Conversion failed"
	stepReady        = "Ready for download!"
	stepInitializing = "Initializing..."
)

type MetadataResolver interface {
	ResolveTrack(ctx context.Context, id string) (*meta.TrackMeta, error)
	ResolvePlaylist(ctx context.Context, id string) (*meta.PlaylistMeta, error)
	ResolveVideo(ctx context.Context, id string) (*meta.TrackMeta, error)
}

type MatchFinder interface {
	FindMatch(ctx context.Context, t match.Target) (*match.Candidate, error)
}

type AudioAcquirer interface {
	Acquire(ctx context.Context, cand match.Candidate, md meta.TrackMeta, workID string, onProgress acquire.ProgressFunc) (*acquire.Result, error)
}

type Service struct {
	Store    jobstore.Store
	Meta     MetadataResolver
	Matcher  MatchFinder
	Acquirer AudioAcquirer
	// TempDir holds finished artifacts and per-playlist working directories.
	TempDir string
	// BaseURL prefixes download links, e.g. http://localhost:3001.
	BaseURL             string
	PlaylistConcurrency int

	NewID func() string
	Now   func() time.Time

	wg sync.WaitGroup
}

// StageError carries the message shown to the user; Err stays in the logs.
type StageError struct {
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(message string, err error) error {
	return &StageError{Message: message, Err: err}
}

// userMessage never exposes raw internal errors.
func userMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Message
	}
	return msgUnexpected
}
