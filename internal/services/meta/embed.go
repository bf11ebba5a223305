package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var descriptionSeparator = regexp.MustCompile(`\s*[·•]\s*`)

// GetEmbedTrack builds best-effort metadata from the public embed page and the
// oEmbed endpoint. Fields neither source provides are defaulted; the title never is.
func (s *Service) GetEmbedTrack(ctx context.Context, id string) (*TrackMeta, error) {
	embed, err := s.getEmbedMeta(ctx, id)
	if err != nil {
		zaplog.WarnC(ctx, "failed to scrape embed page", zap.String("id", id), zap.Error(err))
		embed = &embedMeta{}
	}

	trackURL := "https://open.spotify.com/track/" + id
	oembed, err := s.getOEmbed(ctx, s.oEmbedURL(), trackURL)
	if err != nil {
		zaplog.WarnC(ctx, "failed to get oembed data", zap.String("id", id), zap.Error(err))
		oembed = &oEmbedResponse{}
	}

	out := TrackMeta{
		ID:          id,
		Title:       firstNonEmpty(embed.Title, oembed.Title),
		Artist:      embed.Artist,
		Album:       embed.Album,
		CoverArtURL: firstNonEmpty(embed.CoverArtURL, oembed.ThumbnailURL),
	}
	if out.Title == "" {
		return nil, fmt.Errorf("%w: no public track information for %s", ErrNotFound, id)
	}
	zaplog.InfoC(ctx, "embed metadata extracted", zap.String("title", out.Title), zap.String("artist", out.Artist))
	out = withDefaults(out)
	return &out, nil
}

func (s *Service) getEmbedMeta(ctx context.Context, id string) (*embedMeta, error) {
	base := s.EmbedBaseURL
	if base == "" {
		base = defaultEmbedBaseURL
	}
	body, err := s.get(ctx, base+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return parseEmbedPage(body)
}

// parseEmbedPage reads og:* meta tags and the ld+json block. The og:description
// is usually "Song · Artist · Album · Year"; ld+json wins when present.
func parseEmbedPage(r io.Reader) (*embedMeta, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	out := &embedMeta{}
	var ldJSON string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop, content := attr(n, "property"), attr(n, "content")
				switch prop {
				case "og:title":
					out.Title = content
				case "og:image":
					out.CoverArtURL = content
				case "og:description":
					parts := descriptionSeparator.Split(content, -1)
					if len(parts) >= 2 {
						out.Artist = strings.TrimSpace(parts[1])
					}
					if len(parts) >= 3 {
						out.Album = strings.TrimSpace(parts[2])
					}
				}
			case "script":
				if attr(n, "type") == "application/ld+json" && n.FirstChild != nil && ldJSON == "" {
					ldJSON = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if ldJSON != "" {
		var ld struct {
			Name     string `json:"name"`
			ByArtist struct {
				Name string `json:"name"`
			} `json:"byArtist"`
			InAlbum struct {
				Name string `json:"name"`
			} `json:"inAlbum"`
		}
		if err := json.Unmarshal([]byte(ldJSON), &ld); err == nil {
			out.Title = firstNonEmpty(ld.Name, out.Title)
			out.Artist = firstNonEmpty(ld.ByArtist.Name, out.Artist)
			out.Album = firstNonEmpty(ld.InAlbum.Name, out.Album)
		}
	}
	return out, nil
}

func (s *Service) getOEmbed(ctx context.Context, endpoint, target string) (*oEmbedResponse, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("url", target)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	body, err := s.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var out oEmbedResponse
	if err = json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode oembed response: %w", err)
	}
	return &out, nil
}

func (s *Service) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return resp.Body, nil
}

func (s *Service) oEmbedURL() string {
	if s.OEmbedURL != "" {
		return s.OEmbedURL
	}
	return defaultOEmbedURL
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
