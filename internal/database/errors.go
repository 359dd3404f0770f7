package database

import "errors"

// ErrAmbiguousID is returned when a session ID prefix matches more than
// one session.
var ErrAmbiguousID = errors.New("session id prefix is ambiguous")
