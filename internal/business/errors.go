package business

import "errors"

// ErrBusinessNotFound is returned when no business matches the lookup key.
var ErrBusinessNotFound = errors.New("business not found")
