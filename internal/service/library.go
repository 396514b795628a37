package service

import (
	"context"
	"fmt"

	"github.com/amaumene/vodarr/internal/domain"
	log "github.com/sirupsen/logrus"
)

type episodeLister interface {
	ListEpisodes(ctx context.Context, seriesID int64) ([]domain.Episode, error)
}

// Library groups registry operations that need the catalog.
type Library struct {
	catalog  episodeLister
	registry BatchMarker
}

func NewLibrary(catalog domain.Catalog, registry BatchMarker) *Library {
	return &Library{catalog: catalog, registry: registry}
}

// MarkSeries records every episode of a series as downloaded without fetching
// anything. It returns the number of episodes marked.
func (l *Library) MarkSeries(ctx context.Context, seriesID int64) (int, error) {
	if seriesID <= 0 {
		return 0, fmt.Errorf("%w: series id must be positive", domain.ErrValidation)
	}

	episodes, err := l.catalog.ListEpisodes(ctx, seriesID)
	if err != nil {
		return 0, fmt.Errorf("listing episodes of series %d: %w", seriesID, err)
	}
	if len(episodes) == 0 {
		return 0, fmt.Errorf("%w: series %d has no episodes", domain.ErrNotFound, seriesID)
	}

	records := make([]domain.DownloadRecord, 0, len(episodes))
	for _, ep := range episodes {
		records = append(records, domain.DownloadRecord{ContentID: ep.ContentID})
	}
	if err := l.registry.MarkBatch(records); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"component": "library",
		"seriesID":  seriesID,
		"episodes":  len(records),
	}).Info("series marked as downloaded")
	return len(records), nil
}
