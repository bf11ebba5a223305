// Package source turns submitted URLs into typed source descriptors.
package source

import "regexp"

type Kind string

const (
	KindTrack    Kind = "spotify"
	KindPlaylist Kind = "spotify-playlist"
	KindVideo    Kind = "youtube"
)

// Descriptor identifies what a submitted URL points at.
type Descriptor struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

var patterns = []struct {
	kind  Kind
	re    *regexp.Regexp
	group int
}{
	{KindTrack, regexp.MustCompile(`(?i)^https?://(open\.)?spotify\.com/track/([a-zA-Z0-9]+)`), 2},
	{KindPlaylist, regexp.MustCompile(`(?i)^https?://(open\.)?spotify\.com/playlist/([a-zA-Z0-9]+)`), 2},
	{KindVideo, regexp.MustCompile(`(?i)^https?://(www\.|m\.|music\.)?(youtube\.com/(watch\?v=|shorts/)|youtu\.be/)([a-zA-Z0-9_-]+)`), 4},
}

// Classify returns the descriptor for url, or false when the url is not a
// recognised track, playlist or video link.
func Classify(url string) (Descriptor, bool) {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(url); m != nil {
			return Descriptor{Kind: p.kind, ID: m[p.group]}, true
		}
	}
	return Descriptor{}, false
}

// VideoURL is the canonical watch URL for a video id.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
