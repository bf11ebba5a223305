package acquire

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gcottom/riff/internal/services/meta"
	"github.com/gcottom/semaphore"
)

var ErrAcquisition = errors.New("failed to download and convert audio")

type Extractor interface {
	ExtractAudio(ctx context.Context, videoURL, outTemplate string, onProgress func(float64)) error
}

// StreamDownloader fetches raw audio for a video id; used when extraction fails.
type StreamDownloader interface {
	Download(ctx context.Context, id string) ([]byte, error)
}

// Tagger embeds descriptive tags into a produced file. It reports success and never fails the caller.
type Tagger interface {
	WriteTags(ctx context.Context, path string, md meta.TrackMeta) bool
}

// ProgressFunc receives percentages in [0,100], never decreasing.
type ProgressFunc func(pct int)

type TranscodeFunc func(ctx context.Context, ffmpegPath string, b []byte, outPath string) error

type Service struct {
	TempDir    string
	Extractor  Extractor
	Fallback   StreamDownloader
	Transcode  TranscodeFunc
	Tagger     Tagger
	Limiter    *semaphore.Semaphore
	FFmpegPath string
}

type Result struct {
	FilePath string `json:"filePath"`
	FileSize int64  `json:"fileSize"`
	Tagged   bool   `json:"tagged"`
}

type ID3Tagger struct {
	HTTPClient *http.Client
	// Timeout bounds the cover art fetch. Zero means 10s.
	Timeout    time.Duration
}
