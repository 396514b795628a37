// Package handler implements the HTTP API.
//
// This package provides endpoints for:
// - /api/queue: list, enqueue, remove, reorder and clear pending jobs
// - /api/worker/{pause,resume,stop}: worker control
// - /api/status: progress of the current transfer
// - /api/downloads: the download registry
// - /api/series/:seriesID/mark: mark every episode of a series
// - /api/scan: reconcile the download directory with the registry
// - /api/history: outcomes of finished jobs
// - /health: health check endpoint
//
// Every reply uses the same envelope: {"status": "ok"|"error", "message", "data"}.
package handler
