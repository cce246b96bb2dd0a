package store

import "errors"

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrQueueEmpty is returned by Claim when no waiting job is available.
var ErrQueueEmpty = errors.New("store: queue empty")

// ErrHogNotRunning is returned by Claim when the claiming hog's own row is
// not in the running state (spec.md §4.1 contract: "a hogid that is
// itself running").
var ErrHogNotRunning = errors.New("store: hog not running")
