package model

import "time"

// URLClass is the canonical classification of a discovered URL.
// Every URL maps to exactly one class.
type URLClass int

const (
	// ClassUnknown is assigned when no pattern set matches.
	ClassUnknown URLClass = iota

	// ClassProduct is a product-detail page.
	ClassProduct

	// ClassCategory is a category or listing page.
	ClassCategory

	// ClassPagination is a further page of a listing.
	ClassPagination
)

// String returns the lower-case name of the class.
func (c URLClass) String() string {
	switch c {
	case ClassProduct:
		return "product"
	case ClassCategory:
		return "category"
	case ClassPagination:
		return "pagination"
	default:
		return "unknown"
	}
}

// ParseURLClass is the inverse of URLClass.String. Unrecognized names
// map to ClassUnknown.
func ParseURLClass(s string) URLClass {
	switch s {
	case "product":
		return ClassProduct
	case "category":
		return ClassCategory
	case "pagination":
		return ClassPagination
	default:
		return ClassUnknown
	}
}

// MarshalText encodes the class by name.
func (c URLClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name. Unrecognized names decode to
// ClassUnknown.
func (c *URLClass) UnmarshalText(text []byte) error {
	*c = ParseURLClass(string(text))
	return nil
}

// URLRecord is a discovered absolute URL with its classification.
type URLRecord struct {
	// URL is the absolute URL after resolution and normalization.
	URL string `json:"url"`

	// Class is the classification assigned when the URL was first seen.
	Class URLClass `json:"class"`

	// DiscoveredAt is when the URL entered the session.
	DiscoveredAt time.Time `json:"discovered_at"`
}
