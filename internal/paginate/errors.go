package paginate

import "errors"

// ErrPaginationExhausted is returned by Advance when no method produced a
// next page. It is the expected end of a listing.
var ErrPaginationExhausted = errors.New("pagination exhausted")
