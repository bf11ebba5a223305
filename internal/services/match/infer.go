package match

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type artistRule struct {
	name    string
	pattern *regexp.Regexp
}

// artistRules are tried in order; the first rule producing an acceptable name wins.
var artistRules = []artistRule{
	{name: "artist-dash-title", pattern: regexp.MustCompile(`^(.+?)\s*[-–—|]\s*.+`)},
	{name: "title-by-artist", pattern: regexp.MustCompile(`(?i)^.+?\s+by\s+(.+?)(?:\s*[\(\[]|$)`)},
}

var (
	artistNoise = regexp.MustCompile(`(?i)\b(official|audio|video|music|lyrics|hd|hq|4k)\b`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

// InferArtist guesses the performer from a video title such as
// "Artist - Title" or "Title by Artist".
func InferArtist(videoTitle string) (string, bool) {
	for _, rule := range artistRules {
		m := rule.pattern.FindStringSubmatch(videoTitle)
		if len(m) < 2 {
			continue
		}
		artist := cleanArtist(m[1])
		if n := utf8.RuneCountInString(artist); n > 1 && n < 50 {
			return artist, true
		}
	}
	return "", false
}

func cleanArtist(s string) string {
	s = artistNoise.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
