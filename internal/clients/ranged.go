package clients

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/melbahja/got"
	log "github.com/sirupsen/logrus"
)

const progressInterval = 500 * time.Millisecond

// RangedFetcher downloads with concurrent range requests through got. It only
// pays off when the provider honours Range headers; got falls back to a single
// connection otherwise.
type RangedFetcher struct {
	locator     StreamLocator
	concurrency uint
}

func NewRangedFetcher(locator StreamLocator, concurrency uint) *RangedFetcher {
	got.UserAgent = UserAgent
	return &RangedFetcher{locator: locator, concurrency: concurrency}
}

func (f *RangedFetcher) Fetch(ctx context.Context, req domain.FetchRequest, progress domain.ProgressFunc) (domain.FetchResult, error) {
	streamURL, err := f.locator.StreamURL(req.ContentID, req.Extension)
	if err != nil {
		return domain.FetchResult{}, err
	}

	filename := destinationName(req)
	dest := filepath.Join(req.Destination, filename)
	part := dest + partSuffix

	if err := os.MkdirAll(req.Destination, downloadPermissions); err != nil {
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "mkdir", err)
	}

	dl := got.NewDownload(ctx, streamURL, part)
	if f.concurrency > 0 {
		dl.Concurrency = f.concurrency
	}

	if err := dl.Init(); err != nil {
		os.Remove(part)
		if ctx.Err() != nil {
			return domain.FetchResult{}, ctx.Err()
		}
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "init", err)
	}

	done := make(chan struct{})
	go reportProgress(dl, progress, done)
	err = dl.Start()
	close(done)

	if err != nil {
		os.Remove(part)
		if ctx.Err() != nil {
			return domain.FetchResult{}, ctx.Err()
		}
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "download", err)
	}

	info, err := os.Stat(part)
	if err != nil {
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "stat", err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return domain.FetchResult{}, domain.NewFetchError(req.ContentID, "rename", err)
	}

	if progress != nil {
		progress(info.Size(), info.Size())
	}
	log.WithFields(log.Fields{
		"component": "fetcher",
		"contentID": req.ContentID.String(),
		"avgMBps":   toMB(int64(dl.AvgSpeed())),
	}).Info("ranged download finished")

	return domain.FetchResult{Filename: filename, SizeMB: toMB(info.Size())}, nil
}

func reportProgress(dl *got.Download, progress domain.ProgressFunc, done <-chan struct{}) {
	if progress == nil {
		return
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			progress(int64(dl.Size()), int64(dl.TotalSize()))
		}
	}
}
