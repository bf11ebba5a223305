package youtube

import (
	"net/http"

	"github.com/kkdai/youtube/v2"
)

type Client struct {
	YTClient *youtube.Client
	// FFmpegPath is handed to yt-dlp when set; otherwise yt-dlp looks on PATH.
	FFmpegPath string
}

func NewClient(ffmpegPath string) *Client {
	return &Client{
		YTClient:   &youtube.Client{HTTPClient: http.DefaultClient},
		FFmpegPath: ffmpegPath,
	}
}

// SearchResult is one entry of a flat yt-dlp search listing.
type SearchResult struct {
	ID           string
	Title        string
	Channel      string
	DurationSec  int
	ThumbnailURL string
	URL          string
}

type searchListing struct {
	Entries []searchEntry `json:"entries"`
}

type searchEntry struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	Channel    string      `json:"channel"`
	Uploader   string      `json:"uploader"`
	Duration   float64     `json:"duration"`
	Thumbnails []thumbnail `json:"thumbnails"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
