package internal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/gcottom/go-zaplog"
	"go.uber.org/zap"
)

const (
	FILEFORMAT    = "mp3"
	ARCHIVEFORMAT = "zip"
	QUALITY       = "320kbps"
	BITRATE       = "320k"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// TranscodeFile pipes raw audio through ffmpeg and writes a constant bitrate mp3 to outPath.
// The output file is removed if ffmpeg fails.
func TranscodeFile(ctx context.Context, ffmpegPath string, b []byte, outPath string) error {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	var args = []string{"-y", "-i", "pipe:0", "-vn", "-c:a", "libmp3lame", "-b:a", BITRATE, "-f", FILEFORMAT, outPath}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe() // Open stdin pipe
	if err != nil {
		zaplog.ErrorC(ctx, "conversion error", zap.Error(err))
		return err
	}

	if err = cmd.Start(); err != nil {
		zaplog.ErrorC(ctx, "conversion error", zap.Error(err))
		return err
	}

	_, err = stdin.Write(b) // pump audio data to stdin pipe
	if err != nil {
		zaplog.ErrorC(ctx, "conversion error", zap.Error(err))
		_ = stdin.Close()
		_ = cmd.Wait()
		_ = os.Remove(outPath)
		return err
	}
	// close the stdin, or ffmpeg will wait forever
	if err = stdin.Close(); err != nil {
		zaplog.ErrorC(ctx, "conversion error", zap.Error(err))
		_ = cmd.Wait()
		_ = os.Remove(outPath)
		return err
	}
	if err = cmd.Wait(); err != nil {
		zaplog.ErrorC(ctx, "conversion error", zap.Error(err), zap.String("stderr", lastLine(stderr.String())))
		_ = os.Remove(outPath)
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// SanitizeFilename strips characters that are illegal in file names, collapses
// whitespace and trims. Applying it twice yields the same result as once.
func SanitizeFilename(name string) string {
	name = whitespaceRun.ReplaceAllString(name, " ")
	name = invalidFilenameChars.ReplaceAllString(name, "")
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// DisplayFilename builds "<artist> - <title>.<ext>" and sanitizes it.
func DisplayFilename(artist, title, ext string) string {
	return SanitizeFilename(fmt.Sprintf("%s - %s.%s", artist, title, ext))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
