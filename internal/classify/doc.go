// Package classify maps a URL to exactly one of the product, category,
// pagination or unknown classes.
//
// Classification is pure pattern matching over the lower-cased URL. The
// pattern sets are tested in a fixed priority order:
//
//	product > pagination > category > unknown
//
// A URL such as "/category/shoes?page=2" structurally matches both the
// category and the pagination sets; it is classified as pagination because
// a page parameter identifies a further page of the same listing more
// precisely than a category path segment does.
package classify
