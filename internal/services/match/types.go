package match

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

var ErrNoMatch = errors.New("could not find a matching audio source for this track")

// Candidate is a search result considered as an audio source. Score is only
// meaningful after scoring.
type Candidate struct {
	ExternalID   string `json:"id"`
	Title        string `json:"title"`
	DurationSec  int    `json:"duration"`
	ThumbnailURL string `json:"thumbnail"`
	URL          string `json:"url"`
	Score        int    `json:"score"`
}

// Target describes the track a candidate should match. DurationMs is 0 when unknown.
type Target struct {
	Title      string
	Artist     string
	DurationMs int
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

type Finder struct {
	Searcher Searcher
	// Limiter throttles outgoing search queries across all jobs. Nil disables throttling.
	Limiter *rate.Limiter
	// Limit is the number of results scored per query.
	Limit int
}
