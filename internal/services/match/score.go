package match

import (
	"math"
	"strings"
)

const (
	titleContainedBonus = 40
	titlePartialWeight  = 25
	artistBonus         = 30
	officialBonus       = 10
	unwantedPenalty     = 15
	oddLengthPenalty    = 10
	minSaneDurationSec  = 60
	maxSaneDurationSec  = 600
)

var unwantedTerms = []string{"live", "cover", "remix", "karaoke", "instrumental", "acoustic"}

// Score rates how well candidate matches target. All comparisons are case
// insensitive and the result is never negative.
func Score(c Candidate, t Target) int {
	score := 0
	candTitle := strings.ToLower(c.Title)
	title := strings.ToLower(strings.TrimSpace(t.Title))
	artist := strings.ToLower(t.Artist)

	if title != "" && strings.Contains(candTitle, title) {
		score += titleContainedBonus
	} else {
		score += partialTitleScore(candTitle, title)
	}

	for _, part := range strings.FieldsFunc(artist, func(r rune) bool { return r == ',' || r == '&' }) {
		part = strings.TrimSpace(part)
		if part != "" && strings.Contains(candTitle, part) {
			score += artistBonus
			break
		}
	}

	if t.DurationMs > 0 && c.DurationSec > 0 {
		score += durationScore(math.Abs(float64(c.DurationSec) - float64(t.DurationMs)/1000))
	}

	if strings.Contains(candTitle, "official") || strings.Contains(candTitle, "audio") {
		score += officialBonus
	}

	for _, term := range unwantedTerms {
		if strings.Contains(candTitle, term) && !strings.Contains(title, term) {
			score -= unwantedPenalty
		}
	}

	if c.DurationSec > 0 && (c.DurationSec < minSaneDurationSec || c.DurationSec > maxSaneDurationSec) {
		score -= oddLengthPenalty
	}

	return max(score, 0)
}

func partialTitleScore(candTitle, title string) int {
	var words, matched int
	for _, w := range strings.Split(title, " ") {
		if len(w) <= 2 {
			continue
		}
		words++
		if strings.Contains(candTitle, w) {
			matched++
		}
	}
	if words == 0 {
		return 0
	}
	return matched * titlePartialWeight / words
}

// durationScore maps the absolute difference in seconds to a bonus or penalty.
// The 30 to 120 second band is neutral.
func durationScore(diff float64) int {
	switch {
	case diff < 5:
		return 20
	case diff < 15:
		return 10
	case diff < 30:
		return 5
	case diff > 120:
		return -20
	}
	return 0
}

// SelectBest scores candidates in place and returns the highest scoring one.
// Zero scores are discarded; ties go to the earliest candidate.
func SelectBest(candidates []Candidate, t Target) (*Candidate, bool) {
	best := -1
	for i := range candidates {
		candidates[i].Score = Score(candidates[i], t)
		if candidates[i].Score == 0 {
			continue
		}
		if best < 0 || candidates[i].Score > candidates[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	out := candidates[best]
	return &out, true
}

// Queries lists search strings from most to least specific.
func Queries(t Target) []string {
	artist := strings.TrimSpace(t.Artist)
	title := strings.TrimSpace(t.Title)
	return []string{
		strings.TrimSpace(artist + " " + title + " official audio"),
		strings.TrimSpace(artist + " " + title + " audio"),
		strings.TrimSpace(artist + " " + title),
		strings.TrimSpace(title + " " + artist),
	}
}
