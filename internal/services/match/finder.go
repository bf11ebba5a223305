package match

import (
	"context"
	"fmt"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/pkg/youtube"
	"go.uber.org/zap"
)

const defaultLimit = 10

// FindMatch searches with progressively looser queries and returns the best
// scoring candidate of the first query that yields an acceptable one.
func (f *Finder) FindMatch(ctx context.Context, t Target) (*Candidate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	for _, query := range Queries(t) {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("search throttled: %w", err)
			}
		}
		results, err := f.Searcher.Search(ctx, query, limit)
		if err != nil {
			zaplog.WarnC(ctx, "search failed, trying next query", zap.String("query", query), zap.Error(err))
			continue
		}
		if len(results) == 0 {
			continue
		}
		if len(results) > limit {
			results = results[:limit]
		}
		if best, ok := SelectBest(results, t); ok {
			zaplog.InfoC(ctx, "found match", zap.String("title", best.Title), zap.Int("score", best.Score))
			return best, nil
		}
	}
	return nil, ErrNoMatch
}

// YouTubeSearcher adapts the yt-dlp backed client to the Searcher interface.
type YouTubeSearcher struct {
	Client *youtube.Client
}

func (y *YouTubeSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	results, err := y.Client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, Candidate{
			ExternalID:   r.ID,
			Title:        r.Title,
			DurationSec:  r.DurationSec,
			ThumbnailURL: r.ThumbnailURL,
			URL:          r.URL,
		})
	}
	return out, nil
}
