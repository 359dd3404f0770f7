// Package database provides SQLite-based crawl history for productscan.
//
// HistoryDB stores one row per crawl session (start URL, site, state,
// counters, output file) and every URL the session discovered with its
// class. The history command lists past sessions from it and the export
// command reads a session's URLs back.
//
// The driver is modernc.org/sqlite, a CGO-free implementation, so the
// binary cross-compiles without a C toolchain.
package database
