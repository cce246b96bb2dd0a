package monitor

// Config is the Monitor's own invocation arguments (spec.md §4.4): a
// concurrency bound on live hogs, the opaque batch-backend submission
// prefix, and the S/T/M parameters passed straight through to each hog.
type Config struct {
	B             int
	CommandPrefix string
	SelfPath      string
	DBPath        string
	TimeoutSecs   int
	S             int
	T             float64
	M             float64
}

// acquireTimeout bounds how long the Monitor's main loop waits for a free
// slot before looping back to the reaper (spec.md §4.4: "Non-blockingly
// acquire a slot (with a short timeout, e.g. 10 s)").
const acquireTimeout = 10 // seconds
