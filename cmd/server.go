package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/qgin/qgin"
	"github.com/gcottom/riff/config"
	"github.com/gcottom/riff/internal/handlers"
	"github.com/gcottom/riff/internal/services/janitor"
	"github.com/gin-contrib/cors"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func printBanner() {
	c := color.New(color.FgCyan)
	c.Print(`
 :::::::::  ::::::::::: :::::::::: ::::::::::
 :+:    :+:     :+:     :+:        :+:
 +:+    +:+     +:+     +:+        +:+
 +#++:++#:      +#+     :#::+::#   :#::+::#
 +#+    +#+     +#+     +#+        +#+
 #+#    #+#     #+#     #+#        #+#
 ###    ### ########### ###        ###
|--------------------------------------------------|
|      Spotify & YouTube to MP3 Conversion API     |
|--------------------------------------------------|
   `)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func RunServer(configPath string) error {
	printBanner()
	ctx := zaplog.CreateAndInject(context.Background())
	zaplog.InfoC(ctx, "starting conversion server...")

	cfg, err := config.LoadConfigFromFile(configPath)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to load config", zap.Error(err))
		return err
	}
	if !cfg.HasSpotifyCredentials() {
		zaplog.WarnC(ctx, "spotify credentials not configured: track metadata falls back to embed pages and playlists are unavailable")
	}

	zaplog.InfoC(ctx, "creating job store...", zap.String("driver", cfg.Store.Driver))
	store, err := openStore(ctx, cfg)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to open job store", zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			zaplog.WarnC(ctx, "failed to close job store", zap.Error(err))
		}
	}()

	zaplog.InfoC(ctx, "creating conversion service...")
	converter, err := newConverter(ctx, cfg, store)
	if err != nil {
		zaplog.ErrorC(ctx, "failed to create conversion service", zap.Error(err))
		return err
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	zaplog.InfoC(ctx, "starting cleanup worker...", zap.Duration("interval", cfg.SweepInterval))
	cleaner := &janitor.Service{
		Store:         store,
		TempDir:       cfg.TempDir,
		JobRetention:  cfg.JobRetention,
		FileRetention: cfg.FileRetention,
		Interval:      cfg.SweepInterval,
	}
	cleaner.Sweep(workerCtx)
	cleaner.Start(workerCtx)

	zaplog.InfoC(ctx, "creating gin engine...")
	ginws := qgin.NewGinEngine(&ctx, &qgin.Config{
		UseContextMW:       true,
		UseLoggingMW:       true,
		UseRequestIDMW:     true,
		InjectRequestIDCTX: true,
		LogRequestID:       true,
		ProdMode:           true,
	})
	ginws.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	zaplog.InfoC(ctx, "setting up routes...")
	handlers.SetupRoutes(ginws, converter, cfg.TempDir)

	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: ginws}
	serverErr := make(chan error, 1)
	go func() {
		zaplog.InfoC(ctx, fmt.Sprintf("now listening and serving on port %s!", cfg.Port))
		serverErr <- httpServer.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err = <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			zaplog.ErrorC(ctx, "server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	zaplog.InfoC(ctx, "shutting down...")
	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		zaplog.ErrorC(ctx, "server shutdown failed", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		converter.Wait()
		close(done)
	}()
	select {
	case <-done:
		zaplog.InfoC(ctx, "all conversions finished")
	case <-shutdownCtx.Done():
		zaplog.WarnC(ctx, "shutdown timeout reached with conversions still running")
	}
	return nil
}
