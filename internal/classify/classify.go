package classify

import (
	"regexp"
	"strings"

	"github.com/nao1215/productscan/internal/model"
)

// productPatterns identify product-detail pages. They include generic path
// segments, query keys, and marketplace-specific numeric or ASIN-style IDs.
var productPatterns = compile(
	`/p/`,
	`/product/`,
	`/item/`,
	`/dp/[a-z0-9]{10}`,
	`/gp/product/`,
	`[?&]pid=`,
	`product_id=`,
	`/item/\d+`,
	`/product/\d+-\d+`,
	`/product-p\d+`,
	`/\w+/\d+/p/`,
	`/p/\d+`,
	`/product-details/`,
)

// paginationPatterns identify further pages of a listing.
var paginationPatterns = compile(
	`[?&]page=`,
	`/page/\d+`,
	`[?&](p|pg|pagenumber|pagenum)=\d+`,
	`[?&]offset=`,
)

// categoryPatterns identify category and listing pages.
var categoryPatterns = compile(
	`/c/`,
	`/category/`,
	`/department/`,
	`[?&]cat=`,
	`category_id=`,
	`/catalog/`,
	`/products/`,
	`/collection/`,
	`/shop/`,
	`/deals/`,
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// rule pairs a class with its pattern set. The slice order is the
// classification priority.
type rule struct {
	class    model.URLClass
	patterns []*regexp.Regexp
}

var rules = []rule{
	{class: model.ClassProduct, patterns: productPatterns},
	{class: model.ClassPagination, patterns: paginationPatterns},
	{class: model.ClassCategory, patterns: categoryPatterns},
}

// Classify returns the class of rawURL. It never fails: anything that
// matches no pattern set is ClassUnknown.
func Classify(rawURL string) model.URLClass {
	lower := strings.ToLower(rawURL)
	for _, r := range rules {
		if matchAny(r.patterns, lower) {
			return r.class
		}
	}
	return model.ClassUnknown
}

// IsProduct reports whether rawURL classifies as a product page.
func IsProduct(rawURL string) bool {
	return Classify(rawURL) == model.ClassProduct
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
