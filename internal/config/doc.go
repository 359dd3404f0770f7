// Package config provides configuration structures and utilities for productscan.
// It defines the crawl limits, rendering engine, proxy and persistence
// options, and loads the optional YAML configuration file.
package config
