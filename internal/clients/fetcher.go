package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	log "github.com/sirupsen/logrus"
)

const (
	ChunkSize = 1024 * 1024

	partSuffix          = ".part"
	headerTimeout       = 30 * time.Second
	downloadPermissions = 0755
	bytesPerMB          = 1024 * 1024
)

// StreamLocator maps a content id to its direct file URL.
type StreamLocator interface {
	StreamURL(id domain.ContentID, ext string) (string, error)
}

// StreamFetcher downloads a file with a single sequential GET, writing it in
// fixed size chunks to "<name>.part" and renaming it once complete.
type StreamFetcher struct {
	locator    StreamLocator
	httpClient *http.Client
	chunkSize  int
}

// NewStreamFetcher returns a fetcher without an overall request timeout:
// transfers of large files are bounded only by cancellation.
func NewStreamFetcher(locator StreamLocator) *StreamFetcher {
	return &StreamFetcher{
		locator: locator,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: headerTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		chunkSize: ChunkSize,
	}
}

func (f *StreamFetcher) Fetch(ctx context.Context, req domain.FetchRequest, progress domain.ProgressFunc) (domain.FetchResult, error) {
	streamURL, err := f.locator.StreamURL(req.ContentID, req.Extension)
	if err != nil {
		return domain.FetchResult{}, err
	}

	filename := destinationName(req)
	dest := filepath.Join(req.Destination, filename)
	logger := log.WithFields(log.Fields{
		"component": "fetcher",
		"contentID": req.ContentID.String(),
		"dest":      dest,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "request", err)
	}
	httpReq.Header.Set("User-Agent", UserAgent)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.FetchResult{}, ctx.Err()
		}
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "get", fmt.Errorf("provider returned %d", resp.StatusCode))
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	logger.WithField("totalMB", toMB(total)).Info("stream opened")

	if err := os.MkdirAll(req.Destination, downloadPermissions); err != nil {
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "mkdir", err)
	}

	transferred, err := f.copyChunks(ctx, resp.Body, dest+partSuffix, total, progress)
	if err != nil {
		os.Remove(dest + partSuffix)
		if ctx.Err() != nil {
			logger.WithField("transferredMB", toMB(transferred)).Info("transfer cancelled, partial file removed")
			return domain.FetchResult{}, ctx.Err()
		}
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "copy", err)
	}

	if total > 0 && transferred != total {
		os.Remove(dest + partSuffix)
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "copy",
			fmt.Errorf("short transfer: got %d of %d bytes", transferred, total))
	}

	if err := os.Rename(dest+partSuffix, dest); err != nil {
		os.Remove(dest + partSuffix)
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "rename", err)
	}

	return domain.FetchResult{Filename: filename, SizeMB: toMB(transferred)}, nil
}

// copyChunks checks ctx before every chunk so a stop request takes effect
// within one chunk.
func (f *StreamFetcher) copyChunks(ctx context.Context, body io.Reader, path string, total int64, progress domain.ProgressFunc) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	var transferred int64
	buf := make([]byte, f.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			file.Close()
			return transferred, err
		}

		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				file.Close()
				return transferred, err
			}
			transferred += int64(n)
			if progress != nil {
				progress(transferred, total)
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			file.Close()
			return transferred, readErr
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return transferred, err
	}
	return transferred, file.Close()
}

// FileName is the sanitized display title plus extension, or "<id>.<ext>"
// when the job has no usable title.
func FileName(req domain.FetchRequest) string {
	name := sanitizeFileName(req.Title)
	if name == "" {
		name = strconv.FormatInt(req.ContentID.ID, 10)
	}
	return name + "." + req.Extension
}

// TaggedFileName is "<title> (<id>).<ext>". It is used instead of FileName
// when another file already holds the plain name.
func TaggedFileName(req domain.FetchRequest) string {
	name := sanitizeFileName(req.Title)
	if name == "" {
		return FileName(req)
	}
	return fmt.Sprintf("%s (%d).%s", name, req.ContentID.ID, req.Extension)
}

// destinationName falls back to TaggedFileName when the plain name is taken,
// so items sharing a title keep separate files.
func destinationName(req domain.FetchRequest) string {
	name := FileName(req)
	if _, err := os.Lstat(filepath.Join(req.Destination, name)); err != nil {
		return name
	}
	return TaggedFileName(req)
}

func sanitizeFileName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " .")
}

func toMB(b int64) float64 {
	return math.Round(float64(b)/bytesPerMB*100) / 100
}
