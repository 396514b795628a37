// Package storage provides the persistent stores of vodarr.
//
// Registry keeps the downloaded-content mapping in a single JSON file that is
// rewritten atomically on every mutation. The history repository records the
// outcome of every finished job in a BoltHold store.
package storage
