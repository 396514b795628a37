package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/amaumene/vodarr/internal/querystring"
	log "github.com/sirupsen/logrus"
)

// UserAgent is sent with every provider request. Some panels reject the Go
// default agent.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	playerAPIPath = "/player_api.php"

	actionVODCategories    = "get_vod_categories"
	actionSeriesCategories = "get_series_categories"
	actionVODStreams       = "get_vod_streams"
	actionSeries           = "get_series"
	actionSeriesInfo       = "get_series_info"
	actionVODInfo          = "get_vod_info"

	maxErrorBodyBytes = 512
)

type credentials struct {
	Username string `url:"username"`
	Password string `url:"password"`
}

type apiRequest struct {
	credentials
	Action     string `url:"action"`
	CategoryID string `url:"category_id,omitempty"`
	SeriesID   int64  `url:"series_id,omitempty"`
	VODID      int64  `url:"vod_id,omitempty"`
}

// flexInt accepts numbers, numeric strings, empty strings and null. Panels
// are inconsistent about how they encode ids.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			*f = 0
			return nil
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = flexInt(v)
	return nil
}

type xtreamCategory struct {
	ID   flexInt `json:"category_id"`
	Name string  `json:"category_name"`
}

type xtreamVOD struct {
	StreamID  flexInt `json:"stream_id"`
	Name      string  `json:"name"`
	Extension string  `json:"container_extension"`
}

type xtreamSeries struct {
	SeriesID flexInt `json:"series_id"`
	Name     string  `json:"name"`
}

type xtreamEpisode struct {
	ID        flexInt `json:"id"`
	Number    flexInt `json:"episode_num"`
	Season    flexInt `json:"season"`
	Title     string  `json:"title"`
	Extension string  `json:"container_extension"`
}

type xtreamSeriesInfo struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	// Episodes is an object keyed by season, or an empty array when the
	// series has none.
	Episodes json.RawMessage `json:"episodes"`
}

type xtreamVODInfo struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	MovieData struct {
		Name string `json:"name"`
	} `json:"movie_data"`
}

// XtreamClient talks to the player API of an Xtream Codes panel.
type XtreamClient struct {
	baseURL    string
	creds      credentials
	httpClient *http.Client
}

func NewXtreamClient(baseURL, username, password string, timeout time.Duration) *XtreamClient {
	return &XtreamClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      credentials{Username: username, Password: password},
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *XtreamClient) ListCategories(ctx context.Context, kind domain.Kind) ([]domain.Category, error) {
	var action string
	switch kind {
	case domain.KindMovie:
		action = actionVODCategories
	case domain.KindSeries:
		action = actionSeriesCategories
	default:
		return nil, fmt.Errorf("%w: no categories for kind %q", domain.ErrValidation, kind)
	}

	var raw []xtreamCategory
	if err := c.get(ctx, apiRequest{Action: action}, &raw); err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(raw))
	for _, rc := range raw {
		categories = append(categories, domain.Category{
			ID:   strconv.FormatInt(int64(rc.ID), 10),
			Name: rc.Name,
			Kind: kind,
		})
	}
	return categories, nil
}

func (c *XtreamClient) ListItems(ctx context.Context, kind domain.Kind, categoryID string) ([]domain.CatalogItem, error) {
	switch kind {
	case domain.KindMovie:
		var raw []xtreamVOD
		if err := c.get(ctx, apiRequest{Action: actionVODStreams, CategoryID: categoryID}, &raw); err != nil {
			return nil, err
		}
		items := make([]domain.CatalogItem, 0, len(raw))
		for _, v := range raw {
			items = append(items, domain.CatalogItem{
				ContentID: domain.NewContentID(domain.KindMovie, int64(v.StreamID)),
				Title:     v.Name,
				Extension: v.Extension,
			})
		}
		return items, nil

	case domain.KindSeries:
		var raw []xtreamSeries
		if err := c.get(ctx, apiRequest{Action: actionSeries, CategoryID: categoryID}, &raw); err != nil {
			return nil, err
		}
		items := make([]domain.CatalogItem, 0, len(raw))
		for _, s := range raw {
			items = append(items, domain.CatalogItem{
				ContentID: domain.NewContentID(domain.KindSeries, int64(s.SeriesID)),
				Title:     s.Name,
			})
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: no items for kind %q", domain.ErrValidation, kind)
}

// ListEpisodes flattens the season map of a series, ordered by season and
// episode number.
func (c *XtreamClient) ListEpisodes(ctx context.Context, seriesID int64) ([]domain.Episode, error) {
	info, err := c.seriesInfo(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	seasons, err := decodeSeasons(info.Episodes)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding episodes of series %d: %v", domain.ErrFetch, seriesID, err)
	}

	var episodes []domain.Episode
	for key, eps := range seasons {
		keySeason, _ := strconv.Atoi(key)
		for _, ep := range eps {
			season := int(ep.Season)
			if season == 0 {
				season = keySeason
			}
			episodes = append(episodes, domain.Episode{
				ContentID:   domain.NewContentID(domain.KindEpisode, int64(ep.ID)),
				SeriesID:    seriesID,
				SeriesTitle: info.Info.Name,
				Title:       ep.Title,
				Season:      season,
				Number:      int(ep.Number),
				Extension:   ep.Extension,
			})
		}
	}

	sort.Slice(episodes, func(i, j int) bool {
		if episodes[i].Season != episodes[j].Season {
			return episodes[i].Season < episodes[j].Season
		}
		if episodes[i].Number != episodes[j].Number {
			return episodes[i].Number < episodes[j].Number
		}
		return episodes[i].ContentID.ID < episodes[j].ContentID.ID
	})
	return episodes, nil
}

func decodeSeasons(raw json.RawMessage) (map[string][]xtreamEpisode, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var lists [][]xtreamEpisode
		if err := json.Unmarshal(raw, &lists); err != nil {
			return nil, err
		}
		seasons := make(map[string][]xtreamEpisode, len(lists))
		for i, eps := range lists {
			seasons[strconv.Itoa(i+1)] = eps
		}
		return seasons, nil
	}

	var seasons map[string][]xtreamEpisode
	if err := json.Unmarshal(raw, &seasons); err != nil {
		return nil, err
	}
	return seasons, nil
}

// ResolveTitle looks up the display name of a movie or series. Episodes have
// no lookup action of their own.
func (c *XtreamClient) ResolveTitle(ctx context.Context, id domain.ContentID) (string, error) {
	switch id.Kind {
	case domain.KindMovie:
		var info xtreamVODInfo
		if err := c.get(ctx, apiRequest{Action: actionVODInfo, VODID: id.ID}, &info); err != nil {
			return "", err
		}
		if info.MovieData.Name != "" {
			return info.MovieData.Name, nil
		}
		if info.Info.Name != "" {
			return info.Info.Name, nil
		}
	case domain.KindSeries:
		info, err := c.seriesInfo(ctx, id.ID)
		if err != nil {
			return "", err
		}
		if info.Info.Name != "" {
			return info.Info.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no title for %s", domain.ErrNotFound, id)
}

// StreamURL builds the direct file URL of a movie or an episode.
func (c *XtreamClient) StreamURL(id domain.ContentID, ext string) (string, error) {
	var segment string
	switch id.Kind {
	case domain.KindMovie:
		segment = "movie"
	case domain.KindEpisode:
		segment = "series"
	default:
		return "", fmt.Errorf("%w: %s has no stream", domain.ErrValidation, id)
	}

	return fmt.Sprintf("%s/%s/%s/%s/%d.%s",
		c.baseURL,
		segment,
		url.PathEscape(c.creds.Username),
		url.PathEscape(c.creds.Password),
		id.ID,
		ext,
	), nil
}

func (c *XtreamClient) seriesInfo(ctx context.Context, seriesID int64) (*xtreamSeriesInfo, error) {
	var info xtreamSeriesInfo
	if err := c.get(ctx, apiRequest{Action: actionSeriesInfo, SeriesID: seriesID}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *XtreamClient) get(ctx context.Context, req apiRequest, out interface{}) error {
	req.credentials = c.creds
	params, err := querystring.Values(req)
	if err != nil {
		return fmt.Errorf("encoding %s query: %w", req.Action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+playerAPIPath+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", req.Action, err)
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrFetch, req.Action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%w: %s: provider returned %d: %s", domain.ErrFetch, req.Action, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %v", domain.ErrFetch, req.Action, err)
	}

	log.WithFields(log.Fields{
		"component": "xtream",
		"action":    req.Action,
		"duration":  time.Since(start),
	}).Debug("provider request completed")
	return nil
}
