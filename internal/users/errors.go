package users

import "errors"

// ErrVersionConflict is returned when a compare-and-swap finds a different stored version.
var ErrVersionConflict = errors.New("user version conflict")
