package acquire

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal"
	"github.com/gcottom/riff/internal/services/match"
	"github.com/gcottom/riff/internal/services/meta"
	"github.com/gcottom/riff/internal/source"
	"go.uber.org/zap"
)

const (
	progressStart    = 5
	progressDownload = 90
	progressTagging  = 95
)

// Acquire downloads the candidate, converts it to a 320 kbps mp3 at
// <TempDir>/<workID>.mp3 and tags it with md. Partial output is removed on failure.
func (s *Service) Acquire(ctx context.Context, cand match.Candidate, md meta.TrackMeta, workID string, onProgress ProgressFunc) (*Result, error) {
	report := monotonic(onProgress)
	if err := os.MkdirAll(s.TempDir, 0755); err != nil {
		zaplog.ErrorC(ctx, "failed to create temp dir", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	if s.Limiter != nil {
		s.Limiter.Acquire()
		defer s.Limiter.Release()
	}
	report(progressStart)

	outPath := s.OutputPath(workID)
	if err := s.fetch(ctx, cand, workID, outPath, report); err != nil {
		s.Cleanup(ctx, workID)
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		zaplog.ErrorC(ctx, "converted file missing", zap.String("workId", workID), zap.Error(err))
		s.Cleanup(ctx, workID)
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	report(progressDownload)

	tagged := false
	if s.Tagger != nil {
		tagged = s.Tagger.WriteTags(ctx, outPath, md)
		if !tagged {
			zaplog.WarnC(ctx, "continuing without tags", zap.String("workId", workID))
		}
	}
	report(progressTagging)

	if info, err = os.Stat(outPath); err != nil {
		s.Cleanup(ctx, workID)
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	report(100)
	return &Result{FilePath: outPath, FileSize: info.Size(), Tagged: tagged}, nil
}

func (s *Service) fetch(ctx context.Context, cand match.Candidate, workID, outPath string, report ProgressFunc) error {
	videoURL := cand.URL
	if videoURL == "" {
		videoURL = source.VideoURL(cand.ExternalID)
	}
	template := filepath.Join(s.TempDir, workID+".%(ext)s")
	err := s.Extractor.ExtractAudio(ctx, videoURL, template, func(frac float64) {
		report(progressStart + int(math.Floor(clamp01(frac)*(progressDownload-progressStart))))
	})
	if err == nil {
		return nil
	}
	if s.Fallback == nil || ctx.Err() != nil {
		return err
	}

	zaplog.WarnC(ctx, "extraction failed, falling back to stream download", zap.String("workId", workID), zap.Error(err))
	s.Cleanup(ctx, workID)
	data, ferr := s.Fallback.Download(ctx, cand.ExternalID)
	if ferr != nil {
		return fmt.Errorf("extraction: %w; stream download: %w", err, ferr)
	}
	transcode := s.Transcode
	if transcode == nil {
		transcode = internal.TranscodeFile
	}
	return transcode(ctx, s.FFmpegPath, data, outPath)
}

func (s *Service) OutputPath(workID string) string {
	return filepath.Join(s.TempDir, workID+"."+internal.FILEFORMAT)
}

// Cleanup removes every file produced for workID, finished or partial.
func (s *Service) Cleanup(ctx context.Context, workID string) {
	matches, err := filepath.Glob(filepath.Join(s.TempDir, workID+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err = os.Remove(m); err != nil && !os.IsNotExist(err) {
			zaplog.WarnC(ctx, "failed to remove partial output", zap.String("path", m), zap.Error(err))
		}
	}
}

func monotonic(fn ProgressFunc) ProgressFunc {
	var mu sync.Mutex
	last := -1
	return func(pct int) {
		pct = min(max(pct, 0), 100)
		mu.Lock()
		defer mu.Unlock()
		if pct <= last {
			return
		}
		last = pct
		if fn != nil {
			fn(pct)
		}
	}
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return math.Min(f, 1)
}
