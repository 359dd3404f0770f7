// Package store persists discovered product URLs incrementally.
//
// The output file is rewritten on every flush: the products already on
// disk and the products in memory are merged by set union, written to a
// temporary file in the same directory and renamed over the old file. A
// failed write leaves the previous file untouched, so the file only ever
// grows across flushes.
//
// The progress file additionally carries the category and pagination URL
// sets and is what a later run resumes from.
package store
