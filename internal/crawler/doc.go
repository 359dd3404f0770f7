// Package crawler drives category crawls.
//
// A Controller runs one CrawlSession through the state machine
//
//	Init -> Breaching -> Extracting -> Paginating -> (Extracting) -> Finalizing -> Done
//
// with Failed reachable from any state. Breaching acquires the start URL
// through the acquisition pipeline, Extracting harvests product links,
// and Paginating advances the same page until a limit is reached, a page
// yields no new products, or no pagination method works. Finalizing
// always runs: it forces a flush, writes the progress file, records the
// session in the history database and emits the summary.
//
// Cancelling the context stops the crawl between pages and finalizes
// whatever was collected.
//
// Batch runs several category URLs concurrently. Each worker owns its
// session and a forked proxy cursor; all workers share one store.
package crawler
