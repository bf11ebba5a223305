package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var luckyTarget = Target{Title: "Get Lucky", Artist: "Daft Punk, Pharrell Williams", DurationMs: 248000}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		cand Candidate
		want int
	}{
		{
			name: "full match",
			cand: Candidate{Title: "Daft Punk - Get Lucky (Official Audio)", DurationSec: 248},
			want: 40 + 30 + 20 + 10,
		},
		{
			name: "second artist part",
			cand: Candidate{Title: "Pharrell Williams get lucky", DurationSec: 258},
			want: 40 + 30 + 10,
		},
		{
			name: "partial title words",
			cand: Candidate{Title: "Lucky day", DurationSec: 200},
			want: 12 - 0 + 0,
		},
		{
			name: "live cover penalties",
			cand: Candidate{Title: "Get Lucky live cover", DurationSec: 248},
			want: 40 + 20 - 15 - 15,
		},
		{
			name: "unknown durations skip duration rules",
			cand: Candidate{Title: "Get Lucky"},
			want: 40,
		},
		{
			name: "short clip",
			cand: Candidate{Title: "get lucky", DurationSec: 30},
			want: 40 - 20 - 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.cand, luckyTarget))
		})
	}
}

func TestScoreUnwantedTermInTargetTitle(t *testing.T) {
	target := Target{Title: "Song (Live)", Artist: "Band"}
	assert.Equal(t, 40+30, Score(Candidate{Title: "Band - Song (Live)"}, target))
}

func TestScoreDurationMonotonic(t *testing.T) {
	target := Target{Title: "Song", Artist: "Band", DurationMs: 200000}
	prev := Score(Candidate{Title: "Band Song", DurationSec: 200}, target)
	for _, diff := range []int{4, 5, 14, 15, 29, 30, 60, 120, 121, 200} {
		got := Score(Candidate{Title: "Band Song", DurationSec: 200 + diff}, target)
		assert.LessOrEqual(t, got, prev, "diff %d", diff)
		prev = got
	}
}

func TestScoreNeverNegative(t *testing.T) {
	target := Target{Title: "Quiet Song", Artist: "Nobody", DurationMs: 180000}
	cand := Candidate{Title: "live cover remix karaoke instrumental acoustic", DurationSec: 3600}
	assert.Equal(t, 0, Score(cand, target))
}

func TestSelectBest(t *testing.T) {
	target := Target{Title: "Song", Artist: "Band"}
	cands := []Candidate{
		{ExternalID: "zero", Title: "unrelated"},
		{ExternalID: "first", Title: "Band Song"},
		{ExternalID: "tie", Title: "Song Band"},
	}
	best, ok := SelectBest(cands, target)
	require.True(t, ok)
	assert.Equal(t, "first", best.ExternalID)
	assert.Equal(t, 70, best.Score)

	_, ok = SelectBest([]Candidate{{Title: "nothing here"}}, target)
	assert.False(t, ok)
}

func TestQueries(t *testing.T) {
	assert.Equal(t, []string{
		"Band Song official audio",
		"Band Song audio",
		"Band Song",
		"Song Band",
	}, Queries(Target{Title: "Song", Artist: "Band"}))
}

type fakeSearcher struct {
	results map[string][]Candidate
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	f.queries = append(f.queries, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

func TestFindMatchFallsThrough(t *testing.T) {
	s := &fakeSearcher{
		errs: map[string]error{"Band Song official audio": errors.New("boom")},
		results: map[string][]Candidate{
			"Band Song audio": {{ExternalID: "bad", Title: "nothing"}},
			"Band Song":       {{ExternalID: "good", Title: "Band - Song"}},
		},
	}
	f := &Finder{Searcher: s, Limiter: rate.NewLimiter(rate.Inf, 1)}
	got, err := f.FindMatch(context.Background(), Target{Title: "Song", Artist: "Band"})
	require.NoError(t, err)
	assert.Equal(t, "good", got.ExternalID)
	assert.Len(t, s.queries, 3)
}

func TestFindMatchScoresOnlyLimit(t *testing.T) {
	cands := make([]Candidate, 0, 12)
	for i := 0; i < 11; i++ {
		cands = append(cands, Candidate{Title: "nothing"})
	}
	cands = append(cands, Candidate{ExternalID: "late", Title: "Band Song"})
	s := &fakeSearcher{results: map[string][]Candidate{"Band Song official audio": cands}}
	f := &Finder{Searcher: s, Limit: 10}
	_, err := f.FindMatch(context.Background(), Target{Title: "Song", Artist: "Band"})
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Len(t, s.queries, 4)
}

func TestInferArtist(t *testing.T) {
	tests := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Daft Punk - Get Lucky (Official Audio)", "Daft Punk", true},
		{"Muse | Uprising", "Muse", true},
		{"Get Lucky by Daft Punk (Official Video)", "Daft Punk", true},
		{"Song BY The Band", "The Band", true},
		{"Official Music Video - Song by Real Artist", "Real Artist", true},
		{"X - Song", "", false},
		{"Just a title", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := InferArtist(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
