package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var playerAPIResponses = map[string]string{
	"get_vod_categories":    `[{"category_id":"1","category_name":"Films","parent_id":0}]`,
	"get_series_categories": `[{"category_id":2,"category_name":"Shows"}]`,
	"get_vod_streams":       `[{"num":1,"name":"Alpha","stream_id":100,"container_extension":"mp4"},{"name":"Beta","stream_id":"101","container_extension":"mkv"}]`,
	"get_series":            `[{"series_id":50,"name":"Show Name"}]`,
	"get_vod_info":          `{"info":{"name":"Alpha (info)"},"movie_data":{"stream_id":100,"name":"Alpha"}}`,
}

const seriesInfoResponse = `{
	"info": {"name": "Show Name"},
	"episodes": {
		"2": [{"id": "521", "episode_num": 1, "title": "S2 One", "container_extension": "mkv", "season": 2}],
		"1": [
			{"id": "512", "episode_num": "2", "title": "Second", "container_extension": "mkv"},
			{"id": "511", "episode_num": 1, "title": "Pilot", "container_extension": "mkv", "season": 1}
		]
	}
}`

func newTestProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/player_api.php", r.URL.Path)
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))

		q := r.URL.Query()
		if q.Get("username") != "user" || q.Get("password") != "pa ss" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		action := q.Get("action")
		switch action {
		case "get_series_info":
			switch q.Get("series_id") {
			case "50":
				w.Write([]byte(seriesInfoResponse))
			case "60":
				w.Write([]byte(`{"info":{"name":"Empty"},"episodes":[]}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
			return
		case "get_vod_streams":
			assert.Equal(t, "1", q.Get("category_id"))
		}

		body, ok := playerAPIResponses[action]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestXtreamClient_ListCategories(t *testing.T) {
	srv := newTestProvider(t)
	c := NewXtreamClient(srv.URL+"/", "user", "pa ss", 5*time.Second)

	tests := []struct {
		kind    domain.Kind
		want    []domain.Category
		wantErr error
	}{
		{kind: domain.KindMovie, want: []domain.Category{{ID: "1", Name: "Films", Kind: domain.KindMovie}}},
		{kind: domain.KindSeries, want: []domain.Category{{ID: "2", Name: "Shows", Kind: domain.KindSeries}}},
		{kind: domain.KindEpisode, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			cats, err := c.ListCategories(context.Background(), tt.kind)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cats)
		})
	}
}

func TestXtreamClient_ListItems(t *testing.T) {
	srv := newTestProvider(t)
	c := NewXtreamClient(srv.URL, "user", "pa ss", 5*time.Second)

	movies, err := c.ListItems(context.Background(), domain.KindMovie, "1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CatalogItem{
		{ContentID: domain.NewContentID(domain.KindMovie, 100), Title: "Alpha", Extension: "mp4"},
		{ContentID: domain.NewContentID(domain.KindMovie, 101), Title: "Beta", Extension: "mkv"},
	}, movies)

	shows, err := c.ListItems(context.Background(), domain.KindSeries, "2")
	require.NoError(t, err)
	assert.Equal(t, []domain.CatalogItem{
		{ContentID: domain.NewContentID(domain.KindSeries, 50), Title: "Show Name"},
	}, shows)
}

func TestXtreamClient_ListEpisodes(t *testing.T) {
	srv := newTestProvider(t)
	c := NewXtreamClient(srv.URL, "user", "pa ss", 5*time.Second)

	eps, err := c.ListEpisodes(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, eps, 3)

	ids := []int64{eps[0].ContentID.ID, eps[1].ContentID.ID, eps[2].ContentID.ID}
	assert.Equal(t, []int64{511, 512, 521}, ids)
	assert.Equal(t, domain.Episode{
		ContentID:   domain.NewContentID(domain.KindEpisode, 512),
		SeriesID:    50,
		SeriesTitle: "Show Name",
		Title:       "Second",
		Season:      1,
		Number:      2,
		Extension:   "mkv",
	}, eps[1])

	empty, err := c.ListEpisodes(context.Background(), 60)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = c.ListEpisodes(context.Background(), 99)
	assert.True(t, errors.Is(err, domain.ErrFetch))
}

func TestXtreamClient_ResolveTitle(t *testing.T) {
	srv := newTestProvider(t)
	c := NewXtreamClient(srv.URL, "user", "pa ss", 5*time.Second)

	tests := []struct {
		name    string
		id      domain.ContentID
		want    string
		wantErr error
	}{
		{name: "movie", id: domain.NewContentID(domain.KindMovie, 100), want: "Alpha"},
		{name: "series", id: domain.NewContentID(domain.KindSeries, 50), want: "Show Name"},
		{name: "episode", id: domain.NewContentID(domain.KindEpisode, 511), wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, err := c.ResolveTitle(context.Background(), tt.id)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, title)
		})
	}
}

func TestXtreamClient_ProviderErrors(t *testing.T) {
	srv := newTestProvider(t)
	c := NewXtreamClient(srv.URL, "user", "wrong", 5*time.Second)

	_, err := c.ListCategories(context.Background(), domain.KindMovie)
	assert.True(t, errors.Is(err, domain.ErrFetch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewXtreamClient(srv.URL, "user", "pa ss", 5*time.Second).ListCategories(ctx, domain.KindMovie)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestXtreamClient_StreamURL(t *testing.T) {
	c := NewXtreamClient("http://panel.example:8080/", "user", "pa/ss", time.Second)

	tests := []struct {
		name    string
		id      domain.ContentID
		ext     string
		want    string
		wantErr bool
	}{
		{name: "movie", id: domain.NewContentID(domain.KindMovie, 100), ext: "mp4", want: "http://panel.example:8080/movie/user/pa%2Fss/100.mp4"},
		{name: "episode", id: domain.NewContentID(domain.KindEpisode, 7), ext: "mkv", want: "http://panel.example:8080/series/user/pa%2Fss/7.mkv"},
		{name: "series", id: domain.NewContentID(domain.KindSeries, 1), ext: "mkv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := c.StreamURL(tt.id, tt.ext)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u)
		})
	}
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in      string
		want    flexInt
		wantErr bool
	}{
		{in: `42`, want: 42},
		{in: `"42"`, want: 42},
		{in: `" 7 "`, want: 7},
		{in: `""`, want: 0},
		{in: `null`, want: 0},
		{in: `3.0`, want: 3},
		{in: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v flexInt
			err := json.Unmarshal([]byte(tt.in), &v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}
