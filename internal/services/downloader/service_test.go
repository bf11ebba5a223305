package downloader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gcottom/riff/internal/services/acquire"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gcottom/riff/internal/services/match"
	"github.com/gcottom/riff/internal/services/meta"
	"github.com/gcottom/riff/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMeta struct {
	track    *meta.TrackMeta
	video    *meta.TrackMeta
	playlist *meta.PlaylistMeta
	err      error
}

func (f *fakeMeta) ResolveTrack(ctx context.Context, id string) (*meta.TrackMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	md := *f.track
	return &md, nil
}

func (f *fakeMeta) ResolvePlaylist(ctx context.Context, id string) (*meta.PlaylistMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.playlist, nil
}

func (f *fakeMeta) ResolveVideo(ctx context.Context, id string) (*meta.TrackMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	md := *f.video
	return &md, nil
}

type fakeFinder struct {
	title string
	fail  map[string]bool
}

func (f *fakeFinder) FindMatch(ctx context.Context, t match.Target) (*match.Candidate, error) {
	if f.fail[t.Title] {
		return nil, match.ErrNoMatch
	}
	title := f.title
	if title == "" {
		title = t.Artist + " - " + t.Title
	}
	return &match.Candidate{ExternalID: "vid-" + t.Title, Title: title, DurationSec: 200}, nil
}

type fakeAcquirer struct {
	dir   string
	fail  map[string]bool
	panic bool

	mu   sync.Mutex
	seen []meta.TrackMeta
}

func (f *fakeAcquirer) Acquire(ctx context.Context, cand match.Candidate, md meta.TrackMeta, workID string, onProgress acquire.ProgressFunc) (*acquire.Result, error) {
	if f.panic {
		panic("acquirer exploded")
	}
	f.mu.Lock()
	f.seen = append(f.seen, md)
	f.mu.Unlock()
	if f.fail[md.Title] {
		return nil, fmt.Errorf("%w: tool exited 1", acquire.ErrAcquisition)
	}
	for _, p := range []int{5, 40, 90, 100} {
		if onProgress != nil {
			onProgress(p)
		}
	}
	path := filepath.Join(f.dir, workID+".mp3")
	body := []byte("mp3:" + md.Title)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return nil, err
	}
	return &acquire.Result{FilePath: path, FileSize: int64(len(body)), Tagged: true}, nil
}

// recordingStore captures every successful write so tests can inspect the progress sequence.
type recordingStore struct {
	jobstore.Store
	mu     sync.Mutex
	writes []jobstore.Job
}

func (r *recordingStore) Update(ctx context.Context, id string, fn jobstore.UpdateFunc) (*jobstore.Job, error) {
	j, err := r.Store.Update(ctx, id, fn)
	if err == nil {
		r.mu.Lock()
		r.writes = append(r.writes, *j.Clone())
		r.mu.Unlock()
	}
	return j, err
}

func (r *recordingStore) progress() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.writes))
	for _, w := range r.writes {
		out = append(out, w.Progress)
	}
	return out
}

func newTestService(t *testing.T, m *fakeMeta, f *fakeFinder, a *fakeAcquirer) (*Service, *recordingStore) {
	t.Helper()
	dir := t.TempDir()
	if a != nil {
		a.dir = dir
	}
	store := &recordingStore{Store: jobstore.NewMemoryStore(time.Hour, nil)}
	ids := 0
	return &Service{
		Store:               store,
		Meta:                m,
		Matcher:             f,
		Acquirer:            a,
		TempDir:             dir,
		BaseURL:             "http://localhost:3001/",
		PlaylistConcurrency: 2,
		NewID: func() string {
			ids++
			return fmt.Sprintf("job%d", ids)
		},
	}, store
}

func submit(t *testing.T, svc *Service, url string) *jobstore.Job {
	t.Helper()
	job, err := svc.Submit(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	svc.Wait()
	got, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	return got
}

func assertMonotonic(t *testing.T, seq []int) {
	t.Helper()
	for i := 1; i < len(seq); i++ {
		assert.GreaterOrEqual(t, seq[i], seq[i-1], "progress went backwards at write %d: %v", i, seq)
	}
}

func TestTrackPipeline(t *testing.T) {
	m := &fakeMeta{track: &meta.TrackMeta{Title: "Song", Artist: "Band", Album: "LP", DurationMs: 200000}}
	svc, store := newTestService(t, m, &fakeFinder{}, &fakeAcquirer{})

	job := submit(t, svc, "https://open.spotify.com/track/abc123?si=x")
	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, source.KindTrack, job.SourceKind)
	assert.Equal(t, "abc123", job.SourceID)
	assert.Equal(t, "Band - Song.mp3", job.Filename)
	assert.Equal(t, "http://localhost:3001/downloads/job1.mp3?name=Band+-+Song.mp3", job.DownloadURL)
	assert.Equal(t, "320kbps", job.Quality)
	assert.Equal(t, int64(len("mp3:Song")), job.FileSize)
	assert.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Metadata)
	assert.Equal(t, "LP", job.Metadata.Album)
	assert.Empty(t, job.Error)

	seq := store.progress()
	assertMonotonic(t, seq)
	assert.Equal(t, 100, seq[len(seq)-1])
	assert.Contains(t, seq, 95)
}

func TestTrackPipelineInfersArtist(t *testing.T) {
	m := &fakeMeta{track: &meta.TrackMeta{Title: "Song", Artist: meta.UnknownArtist, Album: meta.UnknownAlbum}}
	acq := &fakeAcquirer{}
	svc, _ := newTestService(t, m, &fakeFinder{title: "Real Band - Song (Official Audio)"}, acq)

	job := submit(t, svc, "https://open.spotify.com/track/abc")
	require.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.Equal(t, "Real Band", job.Metadata.Artist)
	assert.Equal(t, "Real Band - Song.mp3", job.Filename)
	require.Len(t, acq.seen, 1)
	assert.Equal(t, "Real Band", acq.seen[0].Artist)
}

func TestTrackPipelineNoMatch(t *testing.T) {
	m := &fakeMeta{track: &meta.TrackMeta{Title: "Song", Artist: "Band"}}
	svc, store := newTestService(t, m, &fakeFinder{fail: map[string]bool{"Song": true}}, &fakeAcquirer{})

	job := submit(t, svc, "https://open.spotify.com/track/abc")
	assert.Equal(t, jobstore.StatusError, job.Status)
	assert.Equal(t, "Could not find a matching audio source for this track", job.Error)
	assert.Less(t, job.Progress, 100)
	assert.Empty(t, job.DownloadURL)
	assertMonotonic(t, store.progress())

	// terminal records reject further writes
	tr := &tracker{store: svc.Store, id: job.ID, now: time.Now}
	err := tr.update(context.Background(), func(j *jobstore.Job) { j.Progress = 100 })
	assert.ErrorIs(t, err, jobstore.ErrJobFinalized)
	again, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, again)
}

func TestTrackPipelineMetadataFailure(t *testing.T) {
	svc, _ := newTestService(t, &fakeMeta{err: errors.New("dial tcp: timeout")}, &fakeFinder{}, &fakeAcquirer{})
	job := submit(t, svc, "https://open.spotify.com/track/abc")
	assert.Equal(t, jobstore.StatusError, job.Status)
	assert.Equal(t, "Failed to fetch track metadata", job.Error)
	assert.NotContains(t, job.Error, "dial tcp")
}

func TestTrackPipelineAcquirerPanic(t *testing.T) {
	m := &fakeMeta{track: &meta.TrackMeta{Title: "Song", Artist: "Band"}}
	svc, _ := newTestService(t, m, &fakeFinder{}, &fakeAcquirer{panic: true})
	job := submit(t, svc, "https://open.spotify.com/track/abc")
	assert.Equal(t, jobstore.StatusError, job.Status)
	assert.Equal(t, "An unexpected error occurred during conversion", job.Error)
}

func TestVideoPipeline(t *testing.T) {
	m := &fakeMeta{video: &meta.TrackMeta{Title: "Clip", Artist: "Uploader", Album: meta.UnknownAlbum, DurationMs: 61000}}
	acq := &fakeAcquirer{}
	svc, store := newTestService(t, m, &fakeFinder{fail: map[string]bool{"Clip": true}}, acq)

	job := submit(t, svc, "https://youtu.be/dQw4w9WgXcQ")
	assert.Equal(t, jobstore.StatusCompleted, job.Status)
	assert.Equal(t, source.KindVideo, job.SourceKind)
	assert.Equal(t, "Uploader - Clip.mp3", job.Filename)
	assertMonotonic(t, store.progress())
}

func playlistMeta(n int) *meta.PlaylistMeta {
	pl := &meta.PlaylistMeta{ID: "pl", Name: "Road: Trip", Owner: "dj"}
	for i := 0; i < n; i++ {
		pl.Tracks = append(pl.Tracks, meta.TrackDescriptor{
			ID:     fmt.Sprintf("t%d", i),
			Title:  fmt.Sprintf("Song %d", i+1),
			Artist: "Band",
		})
	}
	pl.TotalTracks = n
	return pl
}

func TestPlaylistPartialFailure(t *testing.T) {
	acq := &fakeAcquirer{fail: map[string]bool{"Song 2": true, "Song 4": true}}
	svc, store := newTestService(t, &fakeMeta{playlist: playlistMeta(5)}, &fakeFinder{}, acq)

	job := submit(t, svc, "https://open.spotify.com/playlist/pl123")
	require.Equal(t, jobstore.StatusCompleted, job.Status, job.Error)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "Road Trip.zip", job.Filename)
	assert.True(t, strings.HasPrefix(job.DownloadURL, "http://localhost:3001/downloads/job1.zip?name="))
	require.NotNil(t, job.PlaylistInfo)
	assert.Equal(t, 3, job.PlaylistInfo.CompletedTracks)
	assert.Equal(t, 2, job.PlaylistInfo.FailedTracks)
	assert.Equal(t, []string{"Song 2", "Song 4"}, job.PlaylistInfo.FailedTrackNames)
	require.NotNil(t, job.Metadata)
	assert.True(t, job.Metadata.IsPlaylist)
	assert.Equal(t, 5, job.Metadata.TotalTracks)

	zr, err := zip.OpenReader(filepath.Join(svc.TempDir, "job1.zip"))
	require.NoError(t, err)
	defer zr.Close()
	entries := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		entries = append(entries, f.Name)
	}
	assert.Equal(t, []string{"01 - Band - Song 1.mp3", "03 - Band - Song 3.mp3", "05 - Band - Song 5.mp3"}, entries)
	assert.Equal(t, job.FileSize, fileSize(t, filepath.Join(svc.TempDir, "job1.zip")))

	assert.NoDirExists(t, filepath.Join(svc.TempDir, "playlist-job1"))
	leftovers, err := filepath.Glob(filepath.Join(svc.TempDir, "*.mp3"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	seq := store.progress()
	assertMonotonic(t, seq)
	assert.Contains(t, seq, 92)
}

func TestPlaylistAllFailed(t *testing.T) {
	f := &fakeFinder{fail: map[string]bool{"Song 1": true, "Song 2": true}}
	svc, _ := newTestService(t, &fakeMeta{playlist: playlistMeta(2)}, f, &fakeAcquirer{})

	job := submit(t, svc, "https://open.spotify.com/playlist/pl123")
	assert.Equal(t, jobstore.StatusError, job.Status)
	assert.Equal(t, "None of the playlist tracks could be downloaded", job.Error)
	assert.NoFileExists(t, filepath.Join(svc.TempDir, "job1.zip"))
	assert.NoDirExists(t, filepath.Join(svc.TempDir, "playlist-job1"))
}

func TestPlaylistEmpty(t *testing.T) {
	svc, _ := newTestService(t, &fakeMeta{playlist: playlistMeta(0)}, &fakeFinder{}, &fakeAcquirer{})
	job := submit(t, svc, "https://open.spotify.com/playlist/pl123")
	assert.Equal(t, jobstore.StatusError, job.Status)
	assert.Equal(t, "None of the playlist tracks could be downloaded", job.Error)
}

func TestPlaylistWithoutCredentials(t *testing.T) {
	svc, _ := newTestService(t, &fakeMeta{err: meta.ErrCredentialsRequired}, &fakeFinder{}, &fakeAcquirer{})
	job := submit(t, svc, "https://open.spotify.com/playlist/pl123")
	assert.Equal(t, jobstore.StatusError, job.Status)
	assert.Contains(t, job.Error, "SPOTIFY_CLIENT_ID")
}

func TestSubmitInvalidURL(t *testing.T) {
	svc, _ := newTestService(t, &fakeMeta{}, &fakeFinder{}, &fakeAcquirer{})
	_, err := svc.Submit(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestSubmitDuplicatesCreateIndependentJobs(t *testing.T) {
	m := &fakeMeta{track: &meta.TrackMeta{Title: "Song", Artist: "Band"}}
	svc, _ := newTestService(t, m, &fakeFinder{}, &fakeAcquirer{})
	a, err := svc.Submit(context.Background(), "https://open.spotify.com/track/abc")
	require.NoError(t, err)
	b, err := svc.Submit(context.Background(), "https://open.spotify.com/track/abc")
	require.NoError(t, err)
	svc.Wait()
	assert.NotEqual(t, a.ID, b.ID)
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Completed)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "shown", userMessage(fmt.Errorf("wrapped: %w", stageErr("shown", errors.New("hidden")))))
	assert.Equal(t, msgUnexpected, userMessage(errors.New("raw")))
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}
