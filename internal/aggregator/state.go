package aggregator

// State is the stage a query run is in.
type State string

const (
	StateIdle           State = "idle"
	StateFetching       State = "fetching"
	StateExtracting     State = "extracting"
	StateDeduping       State = "deduping"
	StateCacheCheck     State = "cache_check"
	StateSummarizing    State = "summarizing"
	StateComplete       State = "complete"
	StatePartialFailure State = "partial_failure"
	StateFailed         State = "failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StatePartialFailure, StateFailed:
		return true
	default:
		return false
	}
}
