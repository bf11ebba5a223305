package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/kkdai/youtube/v2"
	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

const progressInterval = 500 * time.Millisecond

// GetVideo returns the native video descriptor, used for metadata and stream downloads.
func (s *Client) GetVideo(ctx context.Context, id string) (*youtube.Video, error) {
	zaplog.InfoC(ctx, "getting video info", zap.String("videoID", id))
	video, err := s.YTClient.GetVideoContext(ctx, id)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get video info", zap.String("videoID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	return video, nil
}

// Download reads the highest bitrate audio stream of a video into memory.
func (s *Client) Download(ctx context.Context, id string) ([]byte, error) {
	videoInfo, err := s.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	bestFormat := getBestAudioFormat(videoInfo.Formats.Type("audio"))
	if bestFormat == nil {
		zaplog.ErrorC(ctx, "failed to get best audio format", zap.String("id", id))
		return nil, fmt.Errorf("failed to get best audio format")
	}
	zaplog.InfoC(ctx, "best audio format found", zap.String("id", id), zap.Int("bitrate", bestFormat.Bitrate))

	stream, _, err := s.YTClient.GetStreamContext(ctx, videoInfo, bestFormat)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get stream", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()
	streamBytes, err := io.ReadAll(stream)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to read stream", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	zaplog.InfoC(ctx, "successfully downloaded youtube stream", zap.String("id", id), zap.Int("bytes", len(streamBytes)))
	return streamBytes, nil
}

// Search runs a flat yt-dlp search and returns at most limit results in ranking order.
func (s *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	zaplog.InfoC(ctx, "searching youtube", zap.String("query", query), zap.Int("limit", limit))
	res, err := ytdlp.New().
		FlatPlaylist().
		DumpSingleJSON().
		NoWarnings().
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		zaplog.ErrorC(ctx, "youtube search failed", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}
	results, err := parseSearchResults([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ExtractAudio downloads a video and converts it to a 320K mp3 at outTemplate
// (a yt-dlp output template). onProgress receives the download fraction in [0,1].
func (s *Client) ExtractAudio(ctx context.Context, videoURL, outTemplate string, onProgress func(float64)) error {
	dl := ytdlp.New().
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("320K").
		NoPlaylist().
		NoWarnings().
		ForceOverwrites().
		Output(outTemplate)
	if s.FFmpegPath != "" {
		dl.FFmpegLocation(s.FFmpegPath)
	}
	if onProgress != nil {
		dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if update.TotalBytes > 0 {
				onProgress(float64(update.DownloadedBytes) / float64(update.TotalBytes))
			}
		})
	}

	zaplog.InfoC(ctx, "extracting audio", zap.String("url", videoURL))
	if _, err := dl.Run(ctx, videoURL); err != nil {
		zaplog.ErrorC(ctx, "audio extraction failed", zap.String("url", videoURL), zap.Error(err))
		return fmt.Errorf("audio extraction failed: %w", err)
	}
	return nil
}

func parseSearchResults(data []byte) ([]SearchResult, error) {
	var listing searchListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	out := make([]SearchResult, 0, len(listing.Entries))
	for _, e := range listing.Entries {
		if e.ID == "" {
			continue
		}
		r := SearchResult{
			ID:          e.ID,
			Title:       e.Title,
			Channel:     e.Channel,
			DurationSec: int(e.Duration),
			URL:         e.URL,
		}
		if r.Channel == "" {
			r.Channel = e.Uploader
		}
		if r.URL == "" {
			r.URL = "https://www.youtube.com/watch?v=" + e.ID
		}
		var best thumbnail
		for _, t := range e.Thumbnails {
			if t.Width >= best.Width {
				best = t
			}
		}
		r.ThumbnailURL = best.URL
		out = append(out, r)
	}
	return out, nil
}

func getBestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var bestFormat *youtube.Format
	maxBitrate := 0
	for _, format := range formats {
		if format.Bitrate > maxBitrate {
			best := format
			bestFormat = &best
			maxBitrate = format.Bitrate
		}
	}
	return bestFormat
}
