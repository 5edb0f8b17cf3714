package config

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate")

// ErrInUse is returned when a delete is blocked by referencing rows.
var ErrInUse = errors.New("in use")
