package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gcottom/riff/internal/services/downloader"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	submitted []string
	submitErr error
	jobs      map[string]*jobstore.Job
	stats     jobstore.Stats
}

func (f *fakeConverter) Submit(ctx context.Context, rawURL string) (*jobstore.Job, error) {
	f.submitted = append(f.submitted, rawURL)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &jobstore.Job{ID: "job-1", Status: jobstore.StatusPending}, nil
}

func (f *fakeConverter) GetJob(ctx context.Context, id string) (*jobstore.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, jobstore.ErrNotFound
}

func (f *fakeConverter) Stats(ctx context.Context) (jobstore.Stats, error) {
	return f.stats, nil
}

func newRouter(t *testing.T, conv Converter, dir string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, conv, dir)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestConvert(t *testing.T) {
	conv := &fakeConverter{}
	r := newRouter(t, conv, t.TempDir())

	w := do(r, http.MethodPost, "/api/convert", `{"url":"https://open.spotify.com/track/abc"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "Conversion started", body["message"])

	w = do(r, http.MethodPost, "/api/convert", `{"spotifyUrl":"https://open.spotify.com/playlist/p"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"https://open.spotify.com/track/abc", "https://open.spotify.com/playlist/p"}, conv.submitted)
}

func TestConvertRejects(t *testing.T) {
	r := newRouter(t, &fakeConverter{submitErr: downloader.ErrInvalidURL}, t.TempDir())

	w := do(r, http.MethodPost, "/api/convert", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "URL is required", decode(t, w)["error"])

	w = do(r, http.MethodPost, "/api/convert", `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Invalid URL", body["error"])
	assert.Equal(t, "Please provide a valid Spotify track/playlist or YouTube video URL", body["message"])
}

func TestConvertInternalError(t *testing.T) {
	r := newRouter(t, &fakeConverter{submitErr: errors.New("db down")}, t.TempDir())
	w := do(r, http.MethodPost, "/api/convert", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestGetStatus(t *testing.T) {
	conv := &fakeConverter{jobs: map[string]*jobstore.Job{
		"j1": {ID: "j1", Status: jobstore.StatusCompleted, Progress: 100, Step: "Ready for download!"},
	}}
	r := newRouter(t, conv, t.TempDir())

	w := do(r, http.MethodGet, "/api/status/j1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "j1", body["id"])
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 100, body["progress"])

	w = do(r, http.MethodGet, "/api/status/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Job not found", body["error"])
	assert.Equal(t, "Conversion job not found or has expired", body["message"])
}

func TestStatsAndHealth(t *testing.T) {
	r := newRouter(t, &fakeConverter{stats: jobstore.Stats{Total: 3, Pending: 1, Completed: 1, Errors: 1}}, t.TempDir())

	w := do(r, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":3,"pending":1,"completed":1,"errors":1}`, w.Body.String())

	w = do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	_, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job1.mp3"), []byte("ID3audio"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job2.zip"), []byte("PK"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	r := newRouter(t, &fakeConverter{}, dir)

	w := do(r, http.MethodGet, "/downloads/job1.mp3?name=Band%20-%20Song%3F.mp3", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Band - Song.mp3"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "ID3audio", w.Body.String())

	w = do(r, http.MethodGet, "/downloads/job2.zip", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="job2.zip"`, w.Header().Get("Content-Disposition"))

	for _, target := range []string{"/downloads/notes.txt", "/downloads/missing.mp3", "/downloads/.hidden.mp3", "/downloads/..%5Csecret.mp3"} {
		w = do(r, http.MethodGet, target, "")
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, w.Code, target)
	}
}
