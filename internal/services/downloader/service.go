package downloader

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gcottom/riff/internal/source"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Submit validates rawURL, records a pending job and starts its pipeline in
// the background. The returned job is the freshly created record.
func (s *Service) Submit(ctx context.Context, rawURL string) (*jobstore.Job, error) {
	desc, ok := source.Classify(strings.TrimSpace(rawURL))
	if !ok {
		return nil, ErrInvalidURL
	}
	now := s.now()
	job := &jobstore.Job{
		ID:         s.newID(),
		Status:     jobstore.StatusPending,
		Step:       stepInitializing,
		SourceKind: desc.Kind,
		SourceID:   desc.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.Create(ctx, job); err != nil {
		zaplog.ErrorC(ctx, "failed to create job", zap.Error(err))
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	zaplog.InfoC(ctx, "job created", zap.String("jobId", job.ID), zap.String("kind", string(desc.Kind)), zap.String("sourceId", desc.ID))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(context.WithoutCancel(ctx), job.ID, desc)
	}()
	return job, nil
}

// Run drives one job to a terminal state. Nothing escapes: errors and panics
// become a terminal error write.
func (s *Service) Run(ctx context.Context, jobID string, desc source.Descriptor) {
	t := &tracker{store: s.Store, id: jobID, now: s.now}
	defer func() {
		if r := recover(); r != nil {
			zaplog.ErrorC(ctx, "pipeline panicked", zap.String("jobId", jobID), zap.Any("panic", r))
			t.fail(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	var err error
	switch desc.Kind {
	case source.KindTrack:
		err = s.runTrack(ctx, t, desc.ID)
	case source.KindVideo:
		err = s.runVideo(ctx, t, desc.ID)
	case source.KindPlaylist:
		err = s.runPlaylist(ctx, t, desc.ID)
	default:
		err = fmt.Errorf("unsupported source kind %q", desc.Kind)
	}
	if err != nil {
		t.fail(ctx, err)
		return
	}
	zaplog.InfoC(ctx, "job completed", zap.String("jobId", jobID))
}

// Wait blocks until every pipeline started by Submit has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) GetJob(ctx context.Context, id string) (*jobstore.Job, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (jobstore.Stats, error) {
	return s.Store.Stats(ctx)
}

// downloadURL links to an artifact in the temp dir; name is the filename offered to the browser.
func (s *Service) downloadURL(artifactPath, name string) string {
	u := strings.TrimRight(s.BaseURL, "/") + "/downloads/" + url.PathEscape(filepath.Base(artifactPath))
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	return u
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) concurrency() int {
	if s.PlaylistConcurrency > 0 {
		return s.PlaylistConcurrency
	}
	return DefaultPlaylistConcurrency
}
