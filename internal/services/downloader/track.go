package downloader

import (
	"context"
	"errors"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gcottom/riff/internal/services/match"
	"github.com/gcottom/riff/internal/services/meta"
	"github.com/gcottom/riff/internal/source"
	"go.uber.org/zap"
)

func (s *Service) runTrack(ctx context.Context, t *tracker, trackID string) error {
	t.step(ctx, "Fetching track metadata...", 10)
	md, err := s.Meta.ResolveTrack(ctx, trackID)
	if err != nil {
		return stageErr(metaMessage(err, msgTrackMeta), err)
	}
	s.setMetadata(ctx, t, "Metadata retrieved", 25, md)

	t.step(ctx, "Finding audio source...", 35)
	cand, err := s.Matcher.FindMatch(ctx, match.Target{Title: md.Title, Artist: md.Artist, DurationMs: md.DurationMs})
	if err != nil {
		return stageErr(msgNoMatch, err)
	}

	if md.Artist == meta.UnknownArtist && cand.Title != "" {
		if artist, ok := match.InferArtist(cand.Title); ok {
			zaplog.InfoC(ctx, "inferred artist from source title", zap.String("jobId", t.id), zap.String("artist", artist))
			md.Artist = artist
		}
	}
	s.setMetadata(ctx, t, "Source found, starting download...", 50, md)

	return s.convert(ctx, t, *cand, *md)
}

func (s *Service) runVideo(ctx context.Context, t *tracker, videoID string) error {
	t.step(ctx, "Fetching video metadata...", 10)
	md, err := s.Meta.ResolveVideo(ctx, videoID)
	if err != nil {
		return stageErr(metaMessage(err, msgVideoMeta), err)
	}
	s.setMetadata(ctx, t, "Metadata retrieved", 30, md)

	cand := match.Candidate{
		ExternalID:  videoID,
		Title:       md.Title,
		URL:         source.VideoURL(videoID),
		DurationSec: md.DurationMs / 1000,
	}
	t.step(ctx, "Starting download...", 50)
	return s.convert(ctx, t, cand, *md)
}

// convert runs the acquisition and writes the completed record. Acquirer
// progress 0-100 maps onto 60-95.
func (s *Service) convert(ctx context.Context, t *tracker, cand match.Candidate, md meta.TrackMeta) error {
	t.step(ctx, "Converting to MP3...", 60)
	res, err := s.Acquirer.Acquire(ctx, cand, md, t.id, func(pct int) {
		step := "Encoding MP3..."
		if pct >= 90 {
			step = "Finalizing..."
		}
		t.step(ctx, step, 60+pct*35/100)
	})
	if err != nil {
		return stageErr(msgAcquire, err)
	}

	filename := internal.DisplayFilename(md.Artist, md.Title, internal.FILEFORMAT)
	return t.complete(ctx, func(j *jobstore.Job) {
		j.DownloadURL = s.downloadURL(res.FilePath, filename)
		j.Filename = filename
		j.FileSize = res.FileSize
		j.Quality = internal.QUALITY
	})
}

func (s *Service) setMetadata(ctx context.Context, t *tracker, step string, progress int, md *meta.TrackMeta) {
	_ = t.update(ctx, func(j *jobstore.Job) {
		j.Step = step
		j.Progress = progress
		j.Metadata = &jobstore.JobMetadata{
			Title:      md.Title,
			Artist:     md.Artist,
			Album:      md.Album,
			CoverURL:   md.CoverArtURL,
			DurationMs: md.DurationMs,
		}
	})
}

func metaMessage(err error, fallback string) string {
	if errors.Is(err, meta.ErrCredentialsRequired) {
		return msgCredentials
	}
	return fallback
}
