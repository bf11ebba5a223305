package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal"
	"github.com/gcottom/riff/internal/services/downloader"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Converter interface {
	Submit(ctx context.Context, rawURL string) (*jobstore.Job, error)
	GetJob(ctx context.Context, id string) (*jobstore.Job, error)
	Stats(ctx context.Context) (jobstore.Stats, error)
}

type Handlers struct {
	Converter Converter
	// TempDir is where finished artifacts are served from.
	TempDir string
	Now     func() time.Time
}

var contentTypes = map[string]string{
	"." + internal.FILEFORMAT:    "audio/mpeg",
	"." + internal.ARCHIVEFORMAT: "application/zip",
}

func SetupRoutes(router *gin.Engine, converter Converter, tempDir string) {
	handler := &Handlers{Converter: converter, TempDir: tempDir}
	api := router.Group("/api")
	api.POST("/convert", handler.Convert)
	api.GET("/status/:jobId", handler.GetStatus)
	api.GET("/stats", handler.GetStats)
	router.GET("/health", handler.Health)
	router.GET("/downloads/:file", handler.Download)
}

func (h *Handlers) Convert(ctx *gin.Context) {
	var req ConvertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		zaplog.WarnC(ctx, "convert request with unreadable body", zap.Error(err))
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		rawURL = strings.TrimSpace(req.SpotifyURL)
	}
	if rawURL == "" {
		zaplog.WarnC(ctx, "convert request without url")
		ResponseBadRequest(ctx, "URL is required", "Please provide a Spotify or YouTube URL")
		return
	}
	zaplog.InfoC(ctx, "convert request received", zap.String("url", rawURL))
	job, err := h.Converter.Submit(ctx.Request.Context(), rawURL)
	if errors.Is(err, downloader.ErrInvalidURL) {
		zaplog.WarnC(ctx, "convert request with invalid url", zap.String("url", rawURL))
		ResponseBadRequest(ctx, "Invalid URL", "Please provide a valid Spotify track/playlist or YouTube video URL")
		return
	}
	if err != nil {
		zaplog.ErrorC(ctx, "error submitting conversion", zap.Error(err))
		ResponseInternalError(ctx, "Failed to start conversion")
		return
	}
	zaplog.InfoC(ctx, "conversion queued", zap.String("jobId", job.ID))
	ResponseSuccess(ctx, ConvertResponse{JobID: job.ID, Message: "Conversion started", Status: string(job.Status)})
}

func (h *Handlers) GetStatus(ctx *gin.Context) {
	id := ctx.Param("jobId")
	job, err := h.Converter.GetJob(ctx.Request.Context(), id)
	if errors.Is(err, jobstore.ErrNotFound) {
		ResponseFailure(ctx, http.StatusNotFound, "Job not found", "Conversion job not found or has expired")
		return
	}
	if err != nil {
		zaplog.ErrorC(ctx, "error getting job", zap.String("jobId", id), zap.Error(err))
		ResponseInternalError(ctx, "Failed to get job status")
		return
	}
	ResponseSuccess(ctx, job)
}

func (h *Handlers) GetStats(ctx *gin.Context) {
	stats, err := h.Converter.Stats(ctx.Request.Context())
	if err != nil {
		zaplog.ErrorC(ctx, "error getting stats", zap.Error(err))
		ResponseInternalError(ctx, "Failed to get stats")
		return
	}
	ResponseSuccess(ctx, StatsResponse{Total: stats.Total, Pending: stats.Pending, Completed: stats.Completed, Errors: stats.Errors})
}

func (h *Handlers) Health(ctx *gin.Context) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ResponseSuccess(ctx, HealthResponse{Status: "ok", Timestamp: now().UTC()})
}

// Download serves a finished artifact. Only plain basenames with a known
// extension are accepted.
func (h *Handlers) Download(ctx *gin.Context) {
	file := ctx.Param("file")
	if file == "" || file != filepath.Base(file) || strings.HasPrefix(file, ".") || strings.ContainsAny(file, `/\`) {
		ResponseBadRequest(ctx, "Invalid file", "The requested file name is not allowed")
		return
	}
	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(file))]
	if !ok {
		ResponseFailure(ctx, http.StatusNotFound, "File not found", "The requested file does not exist or has expired")
		return
	}
	path := filepath.Join(h.TempDir, file)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		ResponseFailure(ctx, http.StatusNotFound, "File not found", "The requested file does not exist or has expired")
		return
	}
	name := internal.SanitizeFilename(ctx.Query("name"))
	if name == "" {
		name = file
	}
	zaplog.InfoC(ctx, "serving download", zap.String("file", file), zap.Int64("size", info.Size()))
	ctx.Header("Content-Type", contentType)
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	ctx.File(path)
}
