// Package main provides the entry point for the productscan CLI.
//
// productscan walks e-commerce category pages and collects the URLs of
// the product-detail pages they list, following pagination and infinite
// scroll until a depth or page limit is reached.
//
// Usage:
//
//	productscan crawl <category-url>
//	productscan crawl --max-depth 5 <url> <url>
//	productscan history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
