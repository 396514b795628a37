// Package service contains the download orchestration logic of vodarr.
//
// Components share the registry and the queue, which are created once at
// startup and passed by reference:
// - Queue: ordered, deduplicated list of pending jobs
// - Worker: single background consumer driving the fetcher
// - StatusReporter: read-only projection of worker progress
// - Scanner: reconciles files on disk with the registry
// - Library: registry operations that need the catalog
//
// Every operation is safe to call while the worker is running.
package service
