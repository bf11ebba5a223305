package meta

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/kkdai/youtube/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

var (
	ErrCredentialsRequired = errors.New("spotify api credentials required")
	ErrNotFound            = errors.New("metadata not found")
)

type Service struct {
	SpotifyConfig *clientcredentials.Config
	YTClient      VideoInfoClient
	HTTPClient    *http.Client
	Timeout       time.Duration

	// EmbedBaseURL and OEmbedURL point at the public, unauthenticated catalog pages.
	EmbedBaseURL      string
	OEmbedURL         string
	YouTubeOEmbedURL  string
	SpotifyAPIBaseURL string

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

// VideoInfoClient is the subset of the native YouTube client used for video metadata.
type VideoInfoClient interface {
	GetVideo(ctx context.Context, id string) (*youtube.Video, error)
}

type TrackMeta struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	CoverArtURL string `json:"coverUrl,omitempty"`
	DurationMs  int    `json:"duration,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	ISRC        string `json:"isrc,omitempty"`
}

// Year is the four digit release year, or "" when unknown.
func (t TrackMeta) Year() string {
	if len(t.ReleaseDate) >= 4 {
		return t.ReleaseDate[:4]
	}
	return ""
}

// TrackDescriptor is a lightweight playlist entry.
type TrackDescriptor struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	CoverArtURL string `json:"coverUrl,omitempty"`
	DurationMs  int    `json:"duration,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	ISRC        string `json:"isrc,omitempty"`
}

// Metadata expands the descriptor into the full metadata used for tagging.
func (d TrackDescriptor) Metadata() TrackMeta {
	return withDefaults(TrackMeta{
		ID:          d.ID,
		Title:       d.Title,
		Artist:      d.Artist,
		Album:       d.Album,
		CoverArtURL: d.CoverArtURL,
		DurationMs:  d.DurationMs,
		TrackNumber: d.TrackNumber,
		ReleaseDate: d.ReleaseDate,
		ISRC:        d.ISRC,
	})
}

type PlaylistMeta struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Owner       string            `json:"owner"`
	CoverArtURL string            `json:"coverUrl,omitempty"`
	TotalTracks int               `json:"totalTracks"`
	Tracks      []TrackDescriptor `json:"tracks"`
}

type embedMeta struct {
	Title       string
	Artist      string
	Album       string
	CoverArtURL string
}

type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func withDefaults(t TrackMeta) TrackMeta {
	if t.Artist == "" {
		t.Artist = UnknownArtist
	}
	if t.Album == "" {
		t.Album = UnknownAlbum
	}
	return t
}
