// Package model defines the core data structures shared by the crawl engine.
//
// This package contains the following main types:
//   - URLClass and URLRecord: classification of discovered links
//   - CrawlSession: the per-run state passed explicitly to every component
//   - CrawlStatistics: running counters and their read-only snapshot
//   - State: the crawl controller state machine states
//
// Models live in their own package so that classify, extract, store and
// crawler can all depend on them without import cycles. The JSON tags match
// the on-disk output and progress file formats.
package model
