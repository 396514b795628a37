// Package app provides application initialization and lifecycle management.
//
// The App type wires all dependencies together and manages:
// - Configuration loading
// - Registry and history store initialization
// - Download worker lifecycle
// - HTTP server lifecycle
// - Graceful shutdown
//
// The Orchestrator runs the reconciliation scan periodically when
// SCAN_INTERVAL is set.
package app
