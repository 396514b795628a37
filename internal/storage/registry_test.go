package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), "downloaded.json"))
}

func movie(id int64) domain.ContentID {
	return domain.NewContentID(domain.KindMovie, id)
}

func TestRegistry_LoadMissingFile(t *testing.T) {
	reg := setupTestRegistry(t)

	assert.Empty(t, reg.Load())
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_LoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	reg := NewRegistry(path)
	assert.Empty(t, reg.Load())

	require.NoError(t, reg.Mark(movie(1), "a.mp4", 1))
	assert.True(t, reg.Contains(movie(1)))
}

func TestRegistry_LoadSkipsInvalidKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded.json")
	content := `{
		"movie:10": {"downloaded_at": 1700000000.5, "filename": "Ten.mp4", "size_mb": 10.5},
		"bogus": {"downloaded_at": 1, "filename": "x", "size_mb": 1}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg := NewRegistry(path)
	records := reg.Load()

	require.Len(t, records, 1)
	rec := records[movie(10)]
	assert.Equal(t, "Ten.mp4", rec.Filename)
	assert.Equal(t, 10.5, rec.SizeMB)
	assert.WithinDuration(t, time.Unix(1700000000, 500_000_000), rec.DownloadedAt, time.Millisecond)
}

func TestRegistry_MarkThenContains(t *testing.T) {
	reg := setupTestRegistry(t)

	tests := []struct {
		name     string
		id       domain.ContentID
		filename string
		sizeMB   float64
	}{
		{name: "movie", id: movie(100), filename: "Alpha.mp4", sizeMB: 700},
		{name: "episode", id: domain.NewContentID(domain.KindEpisode, 5), filename: "Show S01E01.mkv", sizeMB: 350.25},
		{name: "remark overwrites", id: movie(100), filename: "Alpha.mkv", sizeMB: 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, reg.Mark(tt.id, tt.filename, tt.sizeMB))
			assert.True(t, reg.Contains(tt.id))

			rec, ok := reg.Get(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.filename, rec.Filename)
			assert.Equal(t, tt.sizeMB, rec.SizeMB)
		})
	}
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_MarkRejectsInvalidID(t *testing.T) {
	reg := setupTestRegistry(t)

	err := reg.Mark(domain.ContentID{Kind: "album", ID: 1}, "x", 1)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_MarkBatchRoundTrip(t *testing.T) {
	reg := setupTestRegistry(t)
	at := time.Unix(1700000000, 0)

	batch := []domain.DownloadRecord{
		{ContentID: movie(1), Filename: "x.mp4", SizeMB: 1.5, DownloadedAt: at},
		{ContentID: movie(2), Filename: "y.mp4", SizeMB: 2.5, DownloadedAt: at},
		{ContentID: domain.NewContentID(domain.KindEpisode, 3), Filename: "z.mkv", SizeMB: 3.5, DownloadedAt: at},
	}
	require.NoError(t, reg.MarkBatch(batch))

	reloaded := NewRegistry(reg.Path()).Load()
	require.Len(t, reloaded, 3)
	for _, want := range batch {
		got, ok := reloaded[want.ContentID]
		require.True(t, ok, "missing %s", want.ContentID)
		assert.Equal(t, want.Filename, got.Filename)
		assert.Equal(t, want.SizeMB, got.SizeMB)
		assert.WithinDuration(t, want.DownloadedAt, got.DownloadedAt, time.Millisecond)
	}
}

func TestRegistry_FileShape(t *testing.T) {
	reg := setupTestRegistry(t)
	reg.now = func() time.Time { return time.Unix(1700000000, 250_000_000) }

	require.NoError(t, reg.Mark(movie(100), "Alpha.mp4", 700))

	data, err := os.ReadFile(reg.Path())
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "movie:100")
	entry := raw["movie:100"]
	assert.Len(t, entry, 3)
	assert.InDelta(t, 1700000000.25, entry["downloaded_at"], 0.001)
	assert.Equal(t, "Alpha.mp4", entry["filename"])
	assert.Equal(t, 700.0, entry["size_mb"])
}

func TestRegistry_Unmark(t *testing.T) {
	reg := setupTestRegistry(t)
	require.NoError(t, reg.Mark(movie(1), "a.mp4", 1))

	tests := []struct {
		name    string
		id      domain.ContentID
		wantErr error
	}{
		{name: "present", id: movie(1)},
		{name: "absent", id: movie(1), wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Unmark(tt.id)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.False(t, reg.Contains(tt.id))
		})
	}

	assert.Empty(t, NewRegistry(reg.Path()).Load())
}

func TestRegistry_PersistenceFailureIsSurfaced(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, os.Mkdir(dir, 0755))
	reg := NewRegistry(filepath.Join(dir, "downloaded.json"))
	require.NoError(t, os.Remove(dir))

	err := reg.Mark(movie(1), "a.mp4", 1)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.False(t, reg.Contains(movie(1)))
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	reg := setupTestRegistry(t)
	base := time.Unix(1700000000, 0)

	require.NoError(t, reg.MarkBatch([]domain.DownloadRecord{
		{ContentID: movie(1), DownloadedAt: base},
		{ContentID: movie(2), DownloadedAt: base.Add(time.Hour)},
	}))

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, movie(2), list[0].ContentID)
	assert.Equal(t, movie(1), list[1].ContentID)
}

func TestRegistry_ConcurrentMarks(t *testing.T) {
	reg := setupTestRegistry(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, reg.Mark(movie(id), "f", 1))
		}(int64(i))
	}
	wg.Wait()

	assert.Len(t, NewRegistry(reg.Path()).Load(), 20)
}

func TestRegistry_LoadDuringMarks(t *testing.T) {
	reg := setupTestRegistry(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, reg.MarkBatch([]domain.DownloadRecord{{ContentID: movie(id), Filename: "f", SizeMB: 1}}))
		}(int64(i))
		go func() {
			defer wg.Done()
			reg.Load()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, reg.Len())
	require.NoError(t, reg.Mark(movie(21), "f", 1))
	assert.Len(t, NewRegistry(reg.Path()).Load(), 21)
}
