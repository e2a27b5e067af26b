package domain

import "errors"

// ErrThreadNotFound is returned when a thread ID cannot be found in the store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrInvalidScript is returned when a step script violates its structural rules.
var ErrInvalidScript = errors.New("invalid step script")
