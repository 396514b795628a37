// Package clients provides adapters for the IPTV provider.
//
// XtreamClient implements domain.Catalog against the player API of an Xtream
// Codes panel and builds direct stream URLs. StreamFetcher and RangedFetcher
// implement domain.Fetcher on top of those URLs.
package clients
