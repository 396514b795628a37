package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/amaumene/vodarr/internal/domain"
	ptn "github.com/razsteinmetz/go-ptn"
	log "github.com/sirupsen/logrus"
)

const (
	partialSuffix = ".part"

	RuleContentID   = "content_id"
	RuleExactTitle  = "exact_title"
	RuleReleaseName = "release_name"
	RuleSubstring   = "substring"

	minSubstringTitleLen = 3
)

// taggedStem matches "<title> (<id>)", the name the fetchers fall back to when
// two items share a title.
var taggedStem = regexp.MustCompile(`^(.+) \((\d+)\)$`)

// BatchMarker writes several registry records at once.
type BatchMarker interface {
	MarkBatch(records []domain.DownloadRecord) error
}

// Scanner reconciles files already present in the download directory with
// the registry.
type Scanner struct {
	registry BatchMarker
	running  sync.Mutex
}

func NewScanner(registry BatchMarker) *Scanner {
	return &Scanner{registry: registry}
}

// Run builds a catalog snapshot and scans dir against it. Only one run may be
// in progress at a time.
func (s *Scanner) Run(ctx context.Context, catalog domain.Catalog, dir string) (domain.ScanReport, error) {
	if !s.running.TryLock() {
		return domain.ScanReport{}, fmt.Errorf("%w: a scan is already running", domain.ErrInvalidState)
	}
	defer s.running.Unlock()

	snapshot, err := s.BuildSnapshot(ctx, catalog)
	if err != nil {
		return domain.ScanReport{}, err
	}
	return s.Scan(ctx, dir, snapshot)
}

// BuildSnapshot walks every movie and series category of the catalog. It
// issues one request per category plus one per series and is meant for
// infrequent batch use.
func (s *Scanner) BuildSnapshot(ctx context.Context, catalog domain.Catalog) (domain.CatalogSnapshot, error) {
	var snapshot domain.CatalogSnapshot

	for _, kind := range []domain.Kind{domain.KindMovie, domain.KindSeries} {
		categories, err := catalog.ListCategories(ctx, kind)
		if err != nil {
			return snapshot, fmt.Errorf("listing %s categories: %w", kind, err)
		}

		for _, category := range categories {
			if err := ctx.Err(); err != nil {
				return snapshot, err
			}

			items, err := catalog.ListItems(ctx, kind, category.ID)
			if err != nil {
				return snapshot, fmt.Errorf("listing %s category %s: %w", kind, category.ID, err)
			}

			for _, item := range items {
				if kind == domain.KindMovie {
					snapshot.Entries = append(snapshot.Entries, domain.SnapshotEntry{
						ContentID: item.ContentID,
						Title:     item.Title,
					})
					continue
				}
				snapshot.Entries = append(snapshot.Entries, s.seriesEntries(ctx, catalog, item)...)
			}
		}
	}

	log.WithFields(log.Fields{
		"component": "scanner",
		"entries":   len(snapshot.Entries),
	}).Info("catalog snapshot built")
	return snapshot, nil
}

func (s *Scanner) seriesEntries(ctx context.Context, catalog domain.Catalog, series domain.CatalogItem) []domain.SnapshotEntry {
	episodes, err := catalog.ListEpisodes(ctx, series.ContentID.ID)
	if err != nil {
		log.WithFields(log.Fields{
			"component": "scanner",
			"seriesID":  series.ContentID.ID,
			"error":     err,
		}).Warn("skipping series, episodes unavailable")
		return nil
	}

	entries := make([]domain.SnapshotEntry, 0, len(episodes))
	for _, ep := range episodes {
		seriesTitle := ep.SeriesTitle
		if seriesTitle == "" {
			seriesTitle = series.Title
		}
		entries = append(entries, domain.SnapshotEntry{
			ContentID:   ep.ContentID,
			Title:       ep.Title,
			SeriesTitle: seriesTitle,
			Season:      ep.Season,
			Episode:     ep.Number,
		})
	}
	return entries
}

// Scan matches every regular file of dir against snapshot and records all
// matches in the registry with one batch write. Hidden files and partial
// downloads are ignored.
func (s *Scanner) Scan(ctx context.Context, dir string, snapshot domain.CatalogSnapshot) (domain.ScanReport, error) {
	report := domain.ScanReport{Files: []domain.ScanFileResult{}}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("%w: reading download directory: %v", domain.ErrValidation, err)
	}

	index := newSnapshotIndex(snapshot)
	var records []domain.DownloadRecord

	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, partialSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}

		report.FilesFound++
		result := domain.ScanFileResult{
			Filename: name,
			SizeMB:   toMB(info.Size()),
		}

		entry, rule, ok := index.match(name)
		if ok {
			id := entry.ContentID
			result.Matched = true
			result.ContentID = &id
			result.Title = entry.Title
			result.Rule = rule
			report.Matched++
			records = append(records, domain.DownloadRecord{
				ContentID:    id,
				DownloadedAt: info.ModTime(),
				Filename:     name,
				SizeMB:       result.SizeMB,
			})
		}
		report.Files = append(report.Files, result)
	}

	if len(records) > 0 {
		if err := s.registry.MarkBatch(records); err != nil {
			return report, fmt.Errorf("recording scan matches: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"component": "scanner",
		"dir":       dir,
		"files":     report.FilesFound,
		"matched":   report.Matched,
	}).Info("scan finished")
	return report, nil
}

type normalizedEntry struct {
	entry domain.SnapshotEntry
	title string
}

type snapshotIndex struct {
	byID    map[int64][]domain.SnapshotEntry
	byTitle map[string]domain.SnapshotEntry
	entries []normalizedEntry
}

func newSnapshotIndex(snapshot domain.CatalogSnapshot) *snapshotIndex {
	idx := &snapshotIndex{
		byID:    make(map[int64][]domain.SnapshotEntry),
		byTitle: make(map[string]domain.SnapshotEntry),
	}
	for _, e := range snapshot.Entries {
		idx.byID[e.ContentID.ID] = append(idx.byID[e.ContentID.ID], e)

		title := normalizeTitle(e.Title)
		if title == "" {
			continue
		}
		if _, ok := idx.byTitle[title]; !ok {
			idx.byTitle[title] = e
		}
		idx.entries = append(idx.entries, normalizedEntry{entry: e, title: title})
	}
	return idx
}

func (idx *snapshotIndex) match(filename string) (domain.SnapshotEntry, string, bool) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	if id, err := strconv.ParseInt(stem, 10, 64); err == nil {
		if candidates := idx.byID[id]; len(candidates) == 1 {
			return candidates[0], RuleContentID, true
		}
	}

	if e, ok := idx.matchTagged(stem); ok {
		return e, RuleContentID, true
	}

	normalized := normalizeTitle(stem)
	if normalized == "" {
		return domain.SnapshotEntry{}, "", false
	}

	if e, ok := idx.byTitle[normalized]; ok {
		return e, RuleExactTitle, true
	}

	if e, ok := idx.matchRelease(filename); ok {
		return e, RuleReleaseName, true
	}

	padded := " " + normalized + " "
	var best normalizedEntry
	for _, ne := range idx.entries {
		if len(ne.title) < minSubstringTitleLen || len(ne.title) <= len(best.title) {
			continue
		}
		if strings.Contains(padded, " "+ne.title+" ") {
			best = ne
		}
	}
	if best.title != "" {
		return best.entry, RuleSubstring, true
	}
	return domain.SnapshotEntry{}, "", false
}

// matchTagged accepts an id suffix only when the title before it names the
// same entry, so a year such as "(1999)" is never taken for an id.
func (idx *snapshotIndex) matchTagged(stem string) (domain.SnapshotEntry, bool) {
	m := taggedStem.FindStringSubmatch(stem)
	if m == nil {
		return domain.SnapshotEntry{}, false
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return domain.SnapshotEntry{}, false
	}

	title := normalizeTitle(m[1])
	for _, e := range idx.byID[id] {
		if normalizeTitle(e.Title) == title {
			return e, true
		}
	}
	return domain.SnapshotEntry{}, false
}

// matchRelease handles scene style names such as "Show.S01E02.1080p.mkv".
func (idx *snapshotIndex) matchRelease(filename string) (domain.SnapshotEntry, bool) {
	info, err := ptn.Parse(filename)
	if err != nil || info == nil || info.Season == 0 || info.Episode == 0 {
		return domain.SnapshotEntry{}, false
	}

	series := normalizeTitle(info.Title)
	if series == "" {
		return domain.SnapshotEntry{}, false
	}
	for _, ne := range idx.entries {
		e := ne.entry
		if e.ContentID.Kind != domain.KindEpisode || e.Season != info.Season || e.Episode != info.Episode {
			continue
		}
		if normalizeTitle(e.SeriesTitle) == series {
			return e, true
		}
	}
	return domain.SnapshotEntry{}, false
}

// normalizeTitle lower-cases s and collapses every run of non alphanumeric
// characters into a single space.
func normalizeTitle(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
