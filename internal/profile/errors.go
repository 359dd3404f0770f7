package profile

import "errors"

var (
	// ErrEmptyTag is returned when a profile is registered without a tag.
	ErrEmptyTag = errors.New("site profile has an empty tag")

	// ErrNoProductSelectors is returned when a profile has no product-container selector.
	ErrNoProductSelectors = errors.New("site profile has no product container selectors")

	// ErrNoLinkSelectors is returned when a profile has no link selector.
	ErrNoLinkSelectors = errors.New("site profile has no link selectors")

	// ErrBlankSelector is returned when a selector list contains an empty entry.
	ErrBlankSelector = errors.New("site profile contains a blank selector")
)
