package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/config"
	"github.com/gcottom/riff/internal/services/acquire"
	"github.com/gcottom/riff/internal/services/downloader"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/gcottom/riff/internal/services/match"
	"github.com/gcottom/riff/internal/services/meta"
	"github.com/gcottom/riff/pkg/youtube"
	"github.com/gcottom/semaphore"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

func openStore(ctx context.Context, cfg *config.Config) (jobstore.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0755); err != nil {
			return nil, err
		}
		return jobstore.NewSQLiteStore(cfg.Store.SQLitePath, cfg.JobRetention, nil)
	case config.StoreRedis:
		client := jobstore.NewRedisClient(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		return jobstore.NewRedisStore(ctx, client, cfg.JobRetention, nil)
	case config.StoreMemory:
		return jobstore.NewMemoryStore(cfg.JobRetention, nil), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func newConverter(ctx context.Context, cfg *config.Config, store jobstore.Store) (*downloader.Service, error) {
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	ytClient := youtube.NewClient(cfg.FFmpegPath)

	metaService := &meta.Service{
		SpotifyConfig: &clientcredentials.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		},
		YTClient: ytClient,
		Timeout:  cfg.MetadataTimeout,
	}

	limit := rate.Inf
	if cfg.SearchRatePerSecond > 0 {
		limit = rate.Limit(cfg.SearchRatePerSecond)
	}
	finder := &match.Finder{
		Searcher: &match.YouTubeSearcher{Client: ytClient},
		Limiter:  rate.NewLimiter(limit, 1),
		Limit:    cfg.SearchResults,
	}

	acquirer := &acquire.Service{
		TempDir:    cfg.TempDir,
		Extractor:  ytClient,
		Fallback:   ytClient,
		Tagger:     &acquire.ID3Tagger{HTTPClient: &http.Client{Timeout: cfg.CoverTimeout}, Timeout: cfg.CoverTimeout},
		Limiter:    semaphore.NewSemaphore(cfg.MaxAcquisitions),
		FFmpegPath: cfg.FFmpegPath,
	}

	zaplog.InfoC(ctx, "conversion service ready",
		zap.String("tempDir", cfg.TempDir),
		zap.Int("playlistConcurrency", cfg.PlaylistConcurrency),
		zap.Int("maxAcquisitions", cfg.MaxAcquisitions))
	return &downloader.Service{
		Store:               store,
		Meta:                metaService,
		Matcher:             finder,
		Acquirer:            acquirer,
		TempDir:             cfg.TempDir,
		BaseURL:             cfg.BaseURL,
		PlaylistConcurrency: cfg.PlaylistConcurrency,
	}, nil
}
