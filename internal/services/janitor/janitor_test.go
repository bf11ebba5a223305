package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir := t.TempDir()

	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.zip")
	staleDir := filepath.Join(dir, "playlist-x")
	require.NoError(t, os.WriteFile(old, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("b"), 0644))
	require.NoError(t, os.MkdirAll(staleDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "01 - a.mp3"), []byte("c"), 0644))
	require.NoError(t, os.Chtimes(old, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(staleDir, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(fresh, now.Add(-time.Minute), now.Add(-time.Minute)))

	store := jobstore.NewMemoryStore(0, clock)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &jobstore.Job{ID: "old", Status: jobstore.StatusCompleted, CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Create(ctx, &jobstore.Job{ID: "new", Status: jobstore.StatusPending, CreatedAt: now.Add(-time.Minute)}))

	svc := &Service{Store: store, TempDir: dir, JobRetention: time.Hour, FileRetention: 30 * time.Minute, Now: clock}
	jobs, files := svc.Sweep(ctx)
	assert.Equal(t, 1, jobs)
	assert.Equal(t, 2, files)

	assert.NoFileExists(t, old)
	assert.NoDirExists(t, staleDir)
	assert.FileExists(t, fresh)
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestSweepMissingTempDir(t *testing.T) {
	svc := &Service{TempDir: filepath.Join(t.TempDir(), "nope"), FileRetention: time.Minute}
	jobs, files := svc.Sweep(context.Background())
	assert.Zero(t, jobs)
	assert.Zero(t, files)
}
