package meta

import (
	"context"
	"fmt"

	"github.com/gcottom/go-zaplog"
	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

// ResolveVideo returns metadata for a YouTube video. The uploader stands in for
// the artist; the oEmbed endpoint is used when the native client fails.
func (s *Service) ResolveVideo(ctx context.Context, id string) (*TrackMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	if s.YTClient != nil {
		video, err := s.YTClient.GetVideo(ctx, id)
		if err == nil {
			out := videoMeta(id, video)
			return &out, nil
		}
		zaplog.WarnC(ctx, "failed to get video info, trying oembed", zap.String("id", id), zap.Error(err))
	}

	endpoint := s.YouTubeOEmbedURL
	if endpoint == "" {
		endpoint = defaultYTOEmbedURL
	}
	oembed, err := s.getOEmbed(ctx, endpoint, "https://www.youtube.com/watch?v="+id)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get youtube oembed", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch video metadata: %w", err)
	}
	if oembed.Title == "" {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, id)
	}
	out := withDefaults(TrackMeta{
		ID:          id,
		Title:       oembed.Title,
		Artist:      SanitizeAuthor(oembed.AuthorName),
		CoverArtURL: oembed.ThumbnailURL,
	})
	return &out, nil
}

func videoMeta(id string, video *youtube.Video) TrackMeta {
	out := TrackMeta{
		ID:         id,
		Title:      video.Title,
		Artist:     SanitizeAuthor(video.Author),
		DurationMs: int(video.Duration.Milliseconds()),
	}
	if !video.PublishDate.IsZero() {
		out.ReleaseDate = video.PublishDate.Format("2006-01-02")
	}
	var best youtube.Thumbnail
	for _, thumb := range video.Thumbnails {
		if thumb.Width >= best.Width {
			best = thumb
		}
	}
	out.CoverArtURL = best.URL
	return withDefaults(out)
}
