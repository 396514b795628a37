package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/timshannon/bolthold"
)

type historyRepository struct {
	store *bolthold.Store
}

func OpenHistory(path string, mode os.FileMode) (domain.HistoryRepository, error) {
	store, err := bolthold.Open(path, mode, nil)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	return NewHistoryRepository(store), nil
}

func NewHistoryRepository(store *bolthold.Store) domain.HistoryRepository {
	return &historyRepository{store: store}
}

func (r *historyRepository) Insert(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.store.Insert(bolthold.NextSequence(), entry); err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

func (r *historyRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []domain.HistoryEntry
	query := (&bolthold.Query{}).SortBy("FinishedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := r.store.Find(&entries, query); err != nil {
		return nil, fmt.Errorf("finding recent history: %w", err)
	}
	return entries, nil
}

func (r *historyRepository) FindByContentID(ctx context.Context, id domain.ContentID) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []domain.HistoryEntry
	query := bolthold.Where("ContentID").Eq(id.String()).SortBy("FinishedAt")
	if err := r.store.Find(&entries, query); err != nil {
		return nil, fmt.Errorf("finding history for %s: %w", id, err)
	}
	return entries, nil
}

func (r *historyRepository) Close() error {
	return r.store.Close()
}
