// Package jobstore keeps conversion job records. Stores are passive: they
// persist what the orchestrator hands them and hide records past retention.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/gcottom/riff/internal/source"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	ErrNotFound     = errors.New("job not found")
	ErrExists       = errors.New("job already exists")
	ErrJobFinalized = errors.New("job already finalized")
)

type Job struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	Step         string        `json:"step"`
	Progress     int           `json:"progress"`
	SourceKind   source.Kind   `json:"urlType"`
	SourceID     string        `json:"sourceId"`
	Metadata     *JobMetadata  `json:"metadata,omitempty"`
	PlaylistInfo *PlaylistInfo `json:"playlistInfo,omitempty"`
	DownloadURL  string        `json:"downloadUrl,omitempty"`
	Filename     string        `json:"filename,omitempty"`
	FileSize     int64         `json:"fileSize,omitempty"`
	Quality      string        `json:"quality,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
}

type JobMetadata struct {
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Owner       string `json:"owner,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	DurationMs  int    `json:"duration,omitempty"`
	IsPlaylist  bool   `json:"isPlaylist,omitempty"`
	TotalTracks int    `json:"totalTracks,omitempty"`
}

type PlaylistInfo struct {
	Name             string   `json:"name"`
	TotalTracks      int      `json:"totalTracks"`
	CompletedTracks  int      `json:"completedTracks"`
	FailedTracks     int      `json:"failedTracks"`
	InProgress       int      `json:"inProgress"`
	CurrentTracks    []string `json:"currentTracks,omitempty"`
	FailedTrackNames []string `json:"failedTrackNames,omitempty"`
}

type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

func (s *Stats) add(status Status) {
	s.Total++
	switch status {
	case StatusPending:
		s.Pending++
	case StatusCompleted:
		s.Completed++
	case StatusError:
		s.Errors++
	}
}

// UpdateFunc mutates a copy of the stored job. Returning an error discards the change.
type UpdateFunc func(*Job) error

type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Update is an atomic read-modify-write of one job and returns the stored result.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error)
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status Status) ([]*Job, error)
	// SweepExpired deletes jobs created before cutoff and returns how many went.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Metadata != nil {
		md := *j.Metadata
		out.Metadata = &md
	}
	if j.PlaylistInfo != nil {
		pi := *j.PlaylistInfo
		pi.CurrentTracks = append([]string(nil), j.PlaylistInfo.CurrentTracks...)
		pi.FailedTrackNames = append([]string(nil), j.PlaylistInfo.FailedTrackNames...)
		out.PlaylistInfo = &pi
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// expiry decides whether a record is past retention. A zero retention keeps records forever.
type expiry struct {
	retention time.Duration
	now       func() time.Time
}

func newExpiry(retention time.Duration, now func() time.Time) expiry {
	if now == nil {
		now = time.Now
	}
	return expiry{retention: retention, now: now}
}

func (e expiry) expired(j *Job) bool {
	return e.retention > 0 && e.now().After(j.CreatedAt.Add(e.retention))
}

// cutoff is the creation time before which records count as expired.
func (e expiry) cutoff() time.Time {
	if e.retention <= 0 {
		return time.Time{}
	}
	return e.now().Add(-e.retention)
}
