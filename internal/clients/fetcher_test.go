package clients

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLocator struct {
	base string
}

func (l staticLocator) StreamURL(id domain.ContentID, ext string) (string, error) {
	if !id.Kind.Downloadable() {
		return "", domain.ErrValidation
	}
	return l.base + "/" + strconv.FormatInt(id.ID, 10) + "." + ext, nil
}

func newFileServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/100.mp4":
			http.ServeContent(w, r, "100.mp4", time.Unix(0, 0), bytes.NewReader(payload))
		case "/404.mp4":
			http.NotFound(w, r)
		default:
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamFetcher_Fetch(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 2*ChunkSize+ChunkSize/2)
	srv := newFileServer(t, payload)
	dir := filepath.Join(t.TempDir(), "downloads")

	var calls []int64
	f := NewStreamFetcher(staticLocator{base: srv.URL})
	res, err := f.Fetch(context.Background(), domain.FetchRequest{
		ContentID:   domain.NewContentID(domain.KindMovie, 100),
		Title:       "Alpha",
		Extension:   "mp4",
		Destination: dir,
	}, func(transferred, total int64) {
		assert.Equal(t, int64(len(payload)), total)
		calls = append(calls, transferred)
	})
	require.NoError(t, err)

	assert.Equal(t, "Alpha.mp4", res.Filename)
	assert.Equal(t, 2.5, res.SizeMB)
	assert.Equal(t, []int64{ChunkSize, 2 * ChunkSize, int64(len(payload))}, calls)

	data, err := os.ReadFile(filepath.Join(dir, "Alpha.mp4"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NoFileExists(t, filepath.Join(dir, "Alpha.mp4.part"))
}

func TestStreamFetcher_ProviderError(t *testing.T) {
	srv := newFileServer(t, nil)
	dir := t.TempDir()

	_, err := NewStreamFetcher(staticLocator{base: srv.URL}).Fetch(context.Background(), domain.FetchRequest{
		ContentID:   domain.NewContentID(domain.KindMovie, 404),
		Extension:   "mp4",
		Destination: dir,
	}, nil)

	assert.True(t, errors.Is(err, domain.ErrFetch))
	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, domain.NewContentID(domain.KindMovie, 404), fetchErr.ContentID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStreamFetcher_CancelBetweenChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 4*ChunkSize)
	srv := newFileServer(t, payload)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last int64
	_, err := NewStreamFetcher(staticLocator{base: srv.URL}).Fetch(ctx, domain.FetchRequest{
		ContentID:   domain.NewContentID(domain.KindMovie, 100),
		Title:       "Alpha",
		Extension:   "mp4",
		Destination: dir,
	}, func(transferred, _ int64) {
		last = transferred
		cancel()
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrFetch))
	assert.Equal(t, int64(ChunkSize), last)
	assert.NoFileExists(t, filepath.Join(dir, "Alpha.mp4"))
	assert.NoFileExists(t, filepath.Join(dir, "Alpha.mp4.part"))
}

func TestRangedFetcher_Fetch(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), ChunkSize)
	srv := newFileServer(t, payload)
	dir := t.TempDir()

	res, err := NewRangedFetcher(staticLocator{base: srv.URL}, 2).Fetch(context.Background(), domain.FetchRequest{
		ContentID:   domain.NewContentID(domain.KindMovie, 100),
		Title:       "Alpha",
		Extension:   "mp4",
		Destination: dir,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Alpha.mp4", res.Filename)
	assert.Equal(t, 1.0, res.SizeMB)
	data, err := os.ReadFile(filepath.Join(dir, "Alpha.mp4"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFileName(t *testing.T) {
	movie := domain.NewContentID(domain.KindMovie, 100)

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "plain", title: "Alpha", want: "Alpha.mp4"},
		{name: "separators", title: "AC/DC: Live?", want: "AC DC Live.mp4"},
		{name: "trailing dots", title: " Alpha... ", want: "Alpha.mp4"},
		{name: "control chars", title: "Al\x00pha\n", want: "Alpha.mp4"},
		{name: "empty", title: "", want: "100.mp4"},
		{name: "only separators", title: "///", want: "100.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(domain.FetchRequest{ContentID: movie, Title: tt.title, Extension: "mp4"}))
		})
	}
}

func TestFetchers_SharedTitleKeepsSeparateFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, r.URL.Path, time.Unix(0, 0), bytes.NewReader([]byte("content-of"+r.URL.Path)))
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		fetcher domain.Fetcher
	}{
		{name: "stream", fetcher: NewStreamFetcher(staticLocator{base: srv.URL})},
		{name: "ranged", fetcher: NewRangedFetcher(staticLocator{base: srv.URL}, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			fetch := func(id int64) domain.FetchResult {
				res, err := tt.fetcher.Fetch(context.Background(), domain.FetchRequest{
					ContentID:   domain.NewContentID(domain.KindMovie, id),
					Title:       "Dune",
					Extension:   "mkv",
					Destination: dir,
				}, nil)
				require.NoError(t, err)
				return res
			}

			first := fetch(1)
			second := fetch(2)

			assert.Equal(t, "Dune.mkv", first.Filename)
			assert.Equal(t, "Dune (2).mkv", second.Filename)

			data, err := os.ReadFile(filepath.Join(dir, first.Filename))
			require.NoError(t, err)
			assert.Equal(t, "content-of/1.mkv", string(data))

			data, err = os.ReadFile(filepath.Join(dir, second.Filename))
			require.NoError(t, err)
			assert.Equal(t, "content-of/2.mkv", string(data))
		})
	}
}

func TestTaggedFileName(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "titled", title: "Dune", want: "Dune (2).mkv"},
		{name: "untitled falls back to id", title: "", want: "2.mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := TaggedFileName(domain.FetchRequest{
				ContentID: domain.NewContentID(domain.KindMovie, 2),
				Title:     tt.title,
				Extension: "mkv",
			})
			assert.Equal(t, tt.want, name)
		})
	}
}
