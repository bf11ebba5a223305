package meta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/retry"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var authorNoise = regexp.MustCompile(`(?i)\s*-\s*topic$|vevo$|\s*-\s*official$`)

const (
	defaultTimeout      = 15 * time.Second
	tokenEarlyExpiry    = time.Minute
	playlistPageLimit   = 100
	defaultEmbedBaseURL = "https://open.spotify.com/embed/track/"
	defaultOEmbedURL    = "https://open.spotify.com/oembed"
	defaultYTOEmbedURL  = "https://www.youtube.com/oembed"
)

// ResolveTrack fetches catalog metadata for a track. Without credentials, or
// when the token exchange fails, it falls back to the public embed page and
// oEmbed endpoint.
func (s *Service) ResolveTrack(ctx context.Context, id string) (*TrackMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	if !s.HasCredentials() {
		zaplog.InfoC(ctx, "no spotify credentials, using embed metadata", zap.String("id", id))
		return s.GetEmbedTrack(ctx, id)
	}
	if _, err := s.GetSpotifyToken(ctx); err != nil {
		zaplog.WarnC(ctx, "spotify token unavailable, using embed metadata", zap.String("id", id), zap.Error(err))
		return s.GetEmbedTrack(ctx, id)
	}
	res, err := retry.Retry(retry.NewAlgSimpleDefault(), 3, s.GetSpotifyTrack, ctx, id)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get spotify track", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch track metadata from spotify: %w", err)
	}
	trackMeta := res[0].(TrackMeta)
	return &trackMeta, nil
}

// ResolvePlaylist fetches the playlist and every page of its tracks, dropping
// entries whose track is no longer available.
func (s *Service) ResolvePlaylist(ctx context.Context, id string) (*PlaylistMeta, error) {
	if !s.HasCredentials() {
		return nil, ErrCredentialsRequired
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	res, err := retry.Retry(retry.NewAlgSimpleDefault(), 3, s.GetSpotifyPlaylist, ctx, id)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get spotify playlist", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	playlist := res[0].(PlaylistMeta)
	zaplog.InfoC(ctx, "playlist resolved", zap.String("id", id), zap.Int("tracks", playlist.TotalTracks))
	return &playlist, nil
}

func (s *Service) GetSpotifyTrack(ctx context.Context, id string) (TrackMeta, error) {
	zaplog.InfoC(ctx, "getting track via spotify api", zap.String("id", id))
	client, err := s.spotifyClient(ctx)
	if err != nil {
		return TrackMeta{}, err
	}
	track, err := client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get track", zap.String("id", id), zap.Error(err))
		return TrackMeta{}, err
	}
	return fullTrackMeta(track), nil
}

func (s *Service) GetSpotifyPlaylist(ctx context.Context, id string) (PlaylistMeta, error) {
	zaplog.InfoC(ctx, "getting playlist via spotify api", zap.String("id", id))
	client, err := s.spotifyClient(ctx)
	if err != nil {
		return PlaylistMeta{}, err
	}
	playlist, err := client.GetPlaylist(ctx, spotify.ID(id))
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get playlist", zap.String("id", id), zap.Error(err))
		return PlaylistMeta{}, err
	}
	out := PlaylistMeta{
		ID:    id,
		Name:  playlist.Name,
		Owner: playlist.Owner.DisplayName,
	}
	if len(playlist.Images) > 0 {
		out.CoverArtURL = playlist.Images[0].URL
	}

	page, err := client.GetPlaylistTracks(ctx, spotify.ID(id), spotify.Limit(playlistPageLimit))
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get playlist tracks", zap.String("id", id), zap.Error(err))
		return PlaylistMeta{}, err
	}
	tracks := make([]TrackDescriptor, 0)
	for {
		for _, item := range page.Tracks {
			if item.Track.ID == "" {
				continue
			}
			tm := fullTrackMeta(&item.Track)
			tracks = append(tracks, TrackDescriptor{
				ID:          tm.ID,
				Title:       tm.Title,
				Artist:      tm.Artist,
				Album:       tm.Album,
				CoverArtURL: tm.CoverArtURL,
				DurationMs:  tm.DurationMs,
				TrackNumber: tm.TrackNumber,
				ReleaseDate: tm.ReleaseDate,
				ISRC:        tm.ISRC,
			})
		}
		err = client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			zaplog.ErrorC(ctx, "failed to get next playlist page", zap.String("id", id), zap.Error(err))
			return PlaylistMeta{}, err
		}
	}
	out.Tracks = tracks
	out.TotalTracks = len(tracks)
	return out, nil
}

func (s *Service) HasCredentials() bool {
	if s.SpotifyConfig == nil {
		return false
	}
	id := s.SpotifyConfig.ClientID
	return id != "" && id != "your_spotify_client_id" && s.SpotifyConfig.ClientSecret != ""
}

// GetSpotifyToken returns a cached client-credentials token, refreshed a minute before expiry.
func (s *Service) GetSpotifyToken(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	if s.tokens == nil {
		s.tokens = oauth2.ReuseTokenSourceWithExpiry(nil, &tokenFetcher{svc: s}, tokenEarlyExpiry)
	}
	ts := s.tokens
	s.mu.Unlock()

	token, err := ts.Token()
	if err != nil {
		zaplog.ErrorC(ctx, "failed to get spotify token", zap.Error(err))
		return nil, err
	}
	return token, nil
}

type tokenFetcher struct {
	svc *Service
}

func (f *tokenFetcher) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.svc.timeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.svc.httpClient())
	return f.svc.SpotifyConfig.Token(ctx)
}

func (s *Service) spotifyClient(ctx context.Context) (*spotify.Client, error) {
	token, err := s.GetSpotifyToken(ctx)
	if err != nil {
		return nil, err
	}
	authClient := spotifyauth.New().Client(ctx, token)
	if s.SpotifyAPIBaseURL != "" {
		return spotify.New(authClient, spotify.WithBaseURL(s.SpotifyAPIBaseURL)), nil
	}
	return spotify.New(authClient), nil
}

func fullTrackMeta(track *spotify.FullTrack) TrackMeta {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}
	out := TrackMeta{
		ID:          string(track.ID),
		Title:       track.Name,
		Artist:      strings.Join(artists, ", "),
		Album:       track.Album.Name,
		DurationMs:  int(track.Duration),
		ReleaseDate: track.Album.ReleaseDate,
		TrackNumber: int(track.TrackNumber),
		ISRC:        track.ExternalIDs["isrc"],
	}
	if len(track.Album.Images) > 0 {
		out.CoverArtURL = track.Album.Images[0].URL
	}
	return withDefaults(out)
}

func (s *Service) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return defaultTimeout
}

func (s *Service) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: s.timeout()}
}

// SanitizeAuthor strips channel decorations such as "- Topic" and "VEVO".
func SanitizeAuthor(author string) string {
	return strings.TrimSpace(authorNoise.ReplaceAllString(strings.TrimSpace(author), ""))
}
