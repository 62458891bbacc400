package storage

// Interface defines the contract for evaluation run persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call these methods from multiple
// goroutines.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent readers
// and writers.
type Interface interface {
	// RecordRun persists a completed evaluation run as the latest snapshot
	// and appends its summary to the bounded history.
	RecordRun(run *Run) error

	// LatestRun returns the most recently recorded run, or nil.
	LatestRun() *Run

	// History returns run summaries, newest last.
	History() []RunSummary

	// Data persistence
	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based).
// historyLimit bounds how many run summaries are retained.
func NewStorage(filepath string, historyLimit int) (Interface, error) {
	return NewJSONStorage(filepath, historyLimit)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
