package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal"
	"github.com/gcottom/riff/internal/services/archive"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gcottom/riff/internal/services/match"
	"github.com/gcottom/riff/internal/services/meta"
	"go.uber.org/zap"
)

const (
	playlistBase = 10
	playlistSpan = 80
)

func (s *Service) runPlaylist(ctx context.Context, t *tracker, playlistID string) error {
	workDir := filepath.Join(s.TempDir, "playlist-"+t.id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return stageErr(msgWorkDir, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			zaplog.WarnC(ctx, "failed to remove playlist dir", zap.String("jobId", t.id), zap.Error(err))
		}
	}()

	t.step(ctx, "Fetching playlist info...", 5)
	pl, err := s.Meta.ResolvePlaylist(ctx, playlistID)
	if err != nil {
		return stageErr(metaMessage(err, msgPlaylistMeta), err)
	}
	total := len(pl.Tracks)
	_ = t.update(ctx, func(j *jobstore.Job) {
		j.Step = fmt.Sprintf("Found %d tracks", total)
		j.Progress = playlistBase
		j.Metadata = &jobstore.JobMetadata{
			Title:       pl.Name,
			Artist:      pl.Owner,
			Album:       fmt.Sprintf("%d tracks", total),
			Owner:       pl.Owner,
			CoverURL:    pl.CoverArtURL,
			IsPlaylist:  true,
			TotalTracks: total,
		}
		j.PlaylistInfo = &jobstore.PlaylistInfo{Name: pl.Name, TotalTracks: total}
	})
	if total == 0 {
		return stageErr(msgNoTracks, fmt.Errorf("playlist %s has no available tracks", playlistID))
	}

	names := make([]string, total)
	for i, tr := range pl.Tracks {
		names[i] = tr.Title
	}
	sched := &Scheduler{
		Concurrency: s.concurrency(),
		OnProgress: func(p BatchProgress) {
			_ = t.update(ctx, func(j *jobstore.Job) {
				finished := p.Completed + p.Failed
				j.Step = fmt.Sprintf("Downloading %d tracks... (%d/%d)", p.InProgress, finished, p.Total)
				j.Progress = playlistBase + finished*playlistSpan/p.Total
				j.PlaylistInfo = &jobstore.PlaylistInfo{
					Name:            pl.Name,
					TotalTracks:     p.Total,
					CompletedTracks: p.Completed,
					FailedTracks:    p.Failed,
					InProgress:      p.InProgress,
					CurrentTracks:   p.Current,
				}
			})
		},
		OnFailure: func(index int, err error) {
			zaplog.WarnC(ctx, "playlist track failed", zap.String("jobId", t.id), zap.Int("index", index), zap.String("title", names[index]), zap.Error(err))
		},
	}
	batch := sched.Run(ctx, names, func(ctx context.Context, index int) (string, error) {
		return s.playlistEntry(ctx, t.id, workDir, index, pl.Tracks[index])
	})
	zaplog.InfoC(ctx, "playlist batch finished", zap.String("jobId", t.id), zap.Int("completed", batch.Completed), zap.Int("failed", batch.Failed))
	if batch.Completed == 0 {
		return stageErr(msgNoTracks, fmt.Errorf("all %d tracks failed", total))
	}

	t.step(ctx, "Creating ZIP file...", 92)
	zipPath, err := archive.Assemble(ctx, filepath.Join(s.TempDir, t.id+"."+internal.ARCHIVEFORMAT), batch.Paths)
	if err != nil {
		return stageErr(msgArchive, err)
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return stageErr(msgArchive, err)
	}

	filename := internal.SanitizeFilename(pl.Name + "." + internal.ARCHIVEFORMAT)
	failedNames := batch.FailedNames
	if len(failedNames) > maxFailedNames {
		failedNames = failedNames[:maxFailedNames]
	}
	return t.complete(ctx, func(j *jobstore.Job) {
		j.DownloadURL = s.downloadURL(zipPath, filename)
		j.Filename = filename
		j.FileSize = info.Size()
		j.Quality = internal.QUALITY
		j.PlaylistInfo = &jobstore.PlaylistInfo{
			Name:             pl.Name,
			TotalTracks:      total,
			CompletedTracks:  batch.Completed,
			FailedTracks:     batch.Failed,
			FailedTrackNames: failedNames,
		}
	})
}

// playlistEntry matches and acquires one track, then moves it into the
// playlist dir as "NN - Artist - Title.mp3".
func (s *Service) playlistEntry(ctx context.Context, jobID, workDir string, index int, tr meta.TrackDescriptor) (string, error) {
	md := tr.Metadata()
	cand, err := s.Matcher.FindMatch(ctx, match.Target{Title: md.Title, Artist: md.Artist, DurationMs: md.DurationMs})
	if err != nil {
		return "", err
	}
	res, err := s.Acquirer.Acquire(ctx, *cand, md, fmt.Sprintf("%s-track-%d", jobID, index), nil)
	if err != nil {
		return "", err
	}
	name := internal.SanitizeFilename(fmt.Sprintf("%02d - %s - %s.%s", index+1, md.Artist, md.Title, internal.FILEFORMAT))
	dst := filepath.Join(workDir, name)
	if err = os.Rename(res.FilePath, dst); err != nil {
		_ = os.Remove(res.FilePath)
		return "", fmt.Errorf("failed to move track into playlist dir: %w", err)
	}
	return dst, nil
}
