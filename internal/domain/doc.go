// Package domain defines the core entities and interfaces for vodarr.
//
// This package contains the content identifier, queued jobs, download records,
// worker state and the contracts of the external collaborators (catalog client
// and fetcher). Blocking interfaces accept a context for cancellation.
package domain
