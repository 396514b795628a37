package domain

import "context"

type Category struct {
	ID   string `json:"category_id"`
	Name string `json:"category_name"`
	Kind Kind   `json:"type"`
}

type CatalogItem struct {
	ContentID ContentID `json:"content_id"`
	Title     string    `json:"title"`
	Extension string    `json:"extension,omitempty"`
}

type Episode struct {
	ContentID   ContentID `json:"content_id"`
	SeriesID    int64     `json:"series_id"`
	SeriesTitle string    `json:"series_title,omitempty"`
	Title       string    `json:"title"`
	Season      int       `json:"season"`
	Number      int       `json:"episode"`
	Extension   string    `json:"extension,omitempty"`
}

type Catalog interface {
	ListCategories(ctx context.Context, kind Kind) ([]Category, error)
	ListItems(ctx context.Context, kind Kind, categoryID string) ([]CatalogItem, error)
	ListEpisodes(ctx context.Context, seriesID int64) ([]Episode, error)
	ResolveTitle(ctx context.Context, id ContentID) (string, error)
}

// SnapshotEntry is one downloadable catalog entry the scanner can match.
type SnapshotEntry struct {
	ContentID   ContentID
	Title       string
	SeriesTitle string
	Season      int
	Episode     int
}

type CatalogSnapshot struct {
	Entries []SnapshotEntry
}

type ScanFileResult struct {
	Filename  string     `json:"filename"`
	SizeMB    float64    `json:"size_mb"`
	Matched   bool       `json:"matched"`
	ContentID *ContentID `json:"content_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Rule      string     `json:"rule,omitempty"`
}

type ScanReport struct {
	FilesFound int              `json:"files_found"`
	Matched    int              `json:"matched"`
	Files      []ScanFileResult `json:"files"`
}
