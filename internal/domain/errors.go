package domain

import "errors"

// ErrValidation marks a rejected user input: the operation was aborted and no
// state changed.
var ErrValidation = errors.New("validation failed")

// ErrNotFound marks a lookup for a record that does not exist locally.
var ErrNotFound = errors.New("record not found")
