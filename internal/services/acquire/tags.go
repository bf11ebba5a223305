package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"
	"github.com/gcottom/audiometa/v3"
	"github.com/gcottom/go-zaplog"
	"github.com/gcottom/riff/internal/services/meta"
	"go.uber.org/zap"
)

const (
	coverTimeout  = 10 * time.Second
	maxCoverBytes = 10 << 20
)

// WriteTags writes ID3v2 title, artist, album, year, track number and, when it
// can be fetched, the front cover. It reports success only when the title and
// artist read back from the saved file.
func (t *ID3Tagger) WriteTags(ctx context.Context, path string, md meta.TrackMeta) bool {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		zaplog.ErrorC(ctx, "failed to open tag", zap.String("path", path), zap.Error(err))
		return false
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(md.Title)
	tag.SetArtist(md.Artist)
	tag.SetAlbum(md.Album)
	if year := md.Year(); year != "" {
		tag.SetYear(year)
	}
	if md.TrackNumber > 0 {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(md.TrackNumber))
	}

	if md.CoverArtURL != "" {
		picture, mime, err := t.fetchCover(ctx, md.CoverArtURL)
		if err != nil {
			zaplog.WarnC(ctx, "failed to fetch cover art, tagging without it", zap.String("url", md.CoverArtURL), zap.Error(err))
		} else {
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    mime,
				PictureType: id3v2.PTFrontCover,
				Description: "Front cover",
				Picture:     picture,
			})
		}
	}

	if err = tag.Save(); err != nil {
		zaplog.ErrorC(ctx, "failed to save tag", zap.String("path", path), zap.Error(err))
		return false
	}
	if err = verifyTags(ctx, path, md); err != nil {
		zaplog.WarnC(ctx, "tag verification failed", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

func (t *ID3Tagger) fetchCover(ctx context.Context, url string) ([]byte, string, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = coverTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty cover image")
	}
	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// verifyTags reads the saved file back and checks that title and artist stuck.
func verifyTags(ctx context.Context, path string, md meta.TrackMeta) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tag read-back panicked: %v", r)
		}
	}()
	tag, err := audiometa.OpenTag(f)
	if err != nil {
		return fmt.Errorf("could not read back tags: %w", err)
	}
	if got := tag.GetTitle(); got != md.Title {
		return fmt.Errorf("title mismatch: want %q, got %q", md.Title, got)
	}
	if got := tag.GetArtist(); got != md.Artist {
		return fmt.Errorf("artist mismatch: want %q, got %q", md.Artist, got)
	}
	zaplog.InfoC(ctx, "tags verified", zap.String("path", path))
	return nil
}
