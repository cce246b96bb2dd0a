package hog

import "github.com/ChuLiYu/hogqueue/pkg/types"

// Config is the fixed set of arguments a Hog is invoked with — the Monitor
// passes these straight through from its own S, T, M flags (spec.md §4.3).
type Config struct {
	HogID types.HogID

	// S is the concurrency bound: how many children may run at once.
	S int

	// T is the total slot time in hours, measured from process start.
	T float64

	// M is the moratorium in hours: once remaining time drops below M, the
	// Hog stops claiming new jobs but keeps reaping what it already has.
	M float64
}

// exitMargin is the remaining-time floor below which the Hog unilaterally
// exits (spec.md §4.3: "a 2-minute grace margin before the backend kills
// the slot").
const exitMargin = 120 // seconds

// iterationFloor is the minimum wall-clock duration of one loop iteration
// (spec.md §4.3: "heartbeat loop with per-iteration wall-time floor of
// 60 s").
const iterationFloor = 60 // seconds
