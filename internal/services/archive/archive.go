// Package archive bundles finished playlist tracks into a single zip.
package archive

import (
	"archive/zip"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
)

// CompressionLevel is a middle ground between speed and size; mp3 barely compresses anyway.
const CompressionLevel = 5

var ErrEmpty = errors.New("no files to archive")

// Assemble writes every present path into a zip at outPath, in order, using
// each file's basename. Empty or missing entries are skipped. Any failure to
// write or finalize the archive removes it and returns an error.
func Assemble(ctx context.Context, outPath string, paths []string) (string, error) {
	present := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			zaplog.WarnC(ctx, "skipping missing archive entry", zap.String("path", p), zap.Error(err))
			continue
		}
		present = append(present, p)
	}
	if len(present) == 0 {
		return "", ErrEmpty
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	if err = write(ctx, f, present); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return "", err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	zaplog.InfoC(ctx, "archive created", zap.String("path", outPath), zap.Int("entries", len(present)))
	return outPath, nil
}

func write(ctx context.Context, w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, CompressionLevel)
	})
	seen := make(map[string]int, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, p, uniqueName(seen, filepath.Base(p))); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err = io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// uniqueName suffixes repeated basenames so two tracks with the same title both survive.
func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s (%d)%s", name[:len(name)-len(ext)], n+1, ext)
}
