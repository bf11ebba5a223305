package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/config"
	"github.com/gcottom/riff/internal/services/jobstore"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "riff",
		Short:         "Convert Spotify tracks, playlists and YouTube videos to tagged MP3s",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunServer(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (default "+config.DefaultPath+")")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP conversion API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunServer(configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "convert <url>",
		Short: "Convert a single URL in-process and print the finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), configPath, args[0])
		},
	})
	return root
}

// runConvert runs one job against an in-memory store and prints the final record.
func runConvert(ctx context.Context, configPath, rawURL string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = zaplog.CreateAndInject(ctx)
	cfg, err := config.LoadConfigFromFile(configPath)
	if err != nil {
		return err
	}
	store := jobstore.NewMemoryStore(0, nil)
	converter, err := newConverter(ctx, cfg, store)
	if err != nil {
		return err
	}
	job, err := converter.Submit(ctx, rawURL)
	if err != nil {
		return err
	}
	converter.Wait()

	job, err = converter.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if job.Status != jobstore.StatusCompleted {
		color.New(color.FgRed).Fprintf(os.Stderr, "conversion failed: %s\n", job.Error)
		return errors.New(job.Error)
	}
	artifact := job.Filename
	if u, err := url.Parse(job.DownloadURL); err == nil {
		artifact = filepath.Join(cfg.TempDir, path.Base(u.Path))
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "saved %q as %s (%d bytes)\n", job.Filename, artifact, job.FileSize)
	return nil
}
