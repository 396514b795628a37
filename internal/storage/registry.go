package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/amaumene/vodarr/internal/domain"
	log "github.com/sirupsen/logrus"
)

const registryFilePermissions = 0644

// fileRecord is the on-disk shape of one registry value. The layout is shared
// with existing registry files and carries no schema version.
type fileRecord struct {
	DownloadedAt float64 `json:"downloaded_at"`
	Filename     string  `json:"filename"`
	SizeMB       float64 `json:"size_mb"`
}

// Registry is the durable set of downloaded content. The whole mapping lives in
// memory and is mirrored to a single JSON file after every mutation.
type Registry struct {
	path    string
	mu      sync.RWMutex
	records map[domain.ContentID]domain.DownloadRecord
	now     func() time.Time
}

func NewRegistry(path string) *Registry {
	r := &Registry{
		path: path,
		now:  time.Now,
	}
	r.records = r.readFile()
	return r
}

func (r *Registry) Path() string {
	return r.path
}

// Load re-reads the backing file and returns a copy of the mapping. A missing
// or unreadable file yields an empty mapping. The read and the swap happen in
// one critical section so a concurrent mutation is never lost.
func (r *Registry) Load() map[domain.ContentID]domain.DownloadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = r.readFile()
	return copyRecords(r.records)
}

func (r *Registry) readFile() map[domain.ContentID]domain.DownloadRecord {
	records := make(map[domain.ContentID]domain.DownloadRecord)

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return records
	}
	if err != nil {
		log.WithFields(log.Fields{
			"component": "registry",
			"path":      r.path,
			"error":     err,
		}).Warn("registry file unreadable, starting empty")
		return records
	}

	var raw map[string]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		log.WithFields(log.Fields{
			"component": "registry",
			"path":      r.path,
			"error":     err,
		}).Warn("registry file corrupted, starting empty")
		return records
	}

	for key, value := range raw {
		id, err := domain.ParseContentID(key)
		if err != nil {
			log.WithFields(log.Fields{
				"component": "registry",
				"key":       key,
			}).Warn("skipping registry entry with invalid key")
			continue
		}
		records[id] = value.toRecord(id)
	}

	log.WithFields(log.Fields{
		"component": "registry",
		"path":      r.path,
		"count":     len(records),
	}).Info("registry loaded")
	return records
}

func (r *Registry) Mark(id domain.ContentID, filename string, sizeMB float64) error {
	return r.MarkBatch([]domain.DownloadRecord{{
		ContentID: id,
		Filename:  filename,
		SizeMB:    sizeMB,
	}})
}

// MarkBatch upserts every record with a single write. Records without a
// timestamp are stamped with the current time. Nothing is applied if the
// write fails.
func (r *Registry) MarkBatch(records []domain.DownloadRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if err := rec.ContentID.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := copyRecords(r.records)
	now := r.now()
	for _, rec := range records {
		if rec.DownloadedAt.IsZero() {
			rec.DownloadedAt = now
		}
		next[rec.ContentID] = rec
	}

	if err := r.persist(next); err != nil {
		return err
	}
	r.records = next
	return nil
}

func (r *Registry) Unmark(id domain.ContentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%w: %s is not in the registry", domain.ErrNotFound, id)
	}

	next := copyRecords(r.records)
	delete(next, id)
	if err := r.persist(next); err != nil {
		return err
	}
	r.records = next
	return nil
}

func (r *Registry) Contains(id domain.ContentID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

func (r *Registry) Get(id domain.ContentID) (domain.DownloadRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// List returns all records, newest first.
func (r *Registry) List() []domain.DownloadRecord {
	r.mu.RLock()
	list := make([]domain.DownloadRecord, 0, len(r.records))
	for _, rec := range r.records {
		list = append(list, rec)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].DownloadedAt.Equal(list[j].DownloadedAt) {
			return list[i].DownloadedAt.After(list[j].DownloadedAt)
		}
		return list[i].ContentID.String() < list[j].ContentID.String()
	})
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// persist writes the mapping to a temporary file next to the registry and
// renames it over the old file.
func (r *Registry) persist(records map[domain.ContentID]domain.DownloadRecord) error {
	raw := make(map[string]fileRecord, len(records))
	for id, rec := range records {
		raw[id.String()] = newFileRecord(rec)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding registry: %v", domain.ErrPersistence, err)
	}

	if err := writeFileAtomic(r.path, data); err != nil {
		log.WithFields(log.Fields{
			"component": "registry",
			"path":      r.path,
			"error":     err,
		}).Error("registry write failed")
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, registryFilePermissions); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true
	return nil
}

func newFileRecord(rec domain.DownloadRecord) fileRecord {
	return fileRecord{
		DownloadedAt: float64(rec.DownloadedAt.UnixNano()) / float64(time.Second),
		Filename:     rec.Filename,
		SizeMB:       rec.SizeMB,
	}
}

func (f fileRecord) toRecord(id domain.ContentID) domain.DownloadRecord {
	sec, frac := math.Modf(f.DownloadedAt)
	return domain.DownloadRecord{
		ContentID:    id,
		DownloadedAt: time.Unix(int64(sec), int64(frac*float64(time.Second))),
		Filename:     f.Filename,
		SizeMB:       f.SizeMB,
	}
}

func copyRecords(src map[domain.ContentID]domain.DownloadRecord) map[domain.ContentID]domain.DownloadRecord {
	dst := make(map[domain.ContentID]domain.DownloadRecord, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
