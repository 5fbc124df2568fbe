package ingest

import "sync"

// Stage identifies one step of the per-file ingestion state machine.
// Transitions are strictly sequential; Complete and Error are terminal.
type Stage string

const (
	StageValidating           Stage = "validating"
	StageUploadingOriginal    Stage = "uploading_original"
	StageGeneratingDerivative Stage = "generating_derivative"
	StageUploadingDerivative  Stage = "uploading_derivative"
	StageProbingDimensions    Stage = "probing_dimensions"
	StagePersistingMetadata   Stage = "persisting_metadata"
	StageUpdatingOwner        Stage = "updating_owner"
	StageComplete             Stage = "complete"
	StageError                Stage = "error"
)

// Status is the coarse state reported alongside each percentage.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Event is one progress report for a single ingestion.
type Event struct {
	Stage   Stage  `json:"stage"`
	Status  Status `json:"status"`
	Percent int    `json:"percent"`
	Error   string `json:"error,omitempty"`
}

// Stage-to-percent mapping. The byte-driven stages interpolate linearly
// within their range; the values are policy, the monotonic ordering is not.
const (
	pctUploadOriginalEnd   = 50
	pctUploadDerivativeEnd = 75
	pctProbing             = 90
	pctPersisting          = 95
	pctUpdatingOwner       = 99
)

// trackerBuffer bounds the events one ingestion can emit: at most one per
// whole percent plus the stage transitions. Sends therefore never block,
// even when nobody reads the channel.
const trackerBuffer = 128

// Tracker aggregates pipeline stages and byte-level transfer progress into
// a single monotonically non-decreasing 0-100 sequence. A successful
// ingestion ends at exactly 100 with StatusComplete; a failed one ends with
// StatusError. The channel is closed after the terminal event.
//
// One Tracker serves one logical upload and must not be reused.
type Tracker struct {
	mu     sync.Mutex
	last   int
	closed bool
	ch     chan Event
}

func NewTracker() *Tracker {
	return &Tracker{ch: make(chan Event, trackerBuffer)}
}

// Events returns the progress stream. The channel is closed once the
// ingestion reaches a terminal state.
func (t *Tracker) Events() <-chan Event {
	return t.ch
}

// stage records a stage transition pinned to a fixed percentage.
func (t *Tracker) stage(stage Stage, status Status, percent int) {
	t.emit(Event{Stage: stage, Status: status, Percent: percent}, false, true)
}

// bytes maps transfer progress onto the [lo, hi] percent range. Only whole
// percent increases are emitted, which keeps the event count bounded.
func (t *Tracker) bytes(stage Stage, lo, hi int, transferred, total int64) {
	percent := lo
	if total > 0 {
		percent = lo + int(int64(hi-lo)*transferred/total)
	}
	t.emit(Event{Stage: stage, Status: StatusUploading, Percent: percent}, false, false)
}

// complete emits the terminal success event and closes the stream.
func (t *Tracker) complete() {
	t.emit(Event{Stage: StageComplete, Status: StatusComplete, Percent: 100}, true, true)
}

// fail emits the terminal error event at the last reported percentage and
// closes the stream.
func (t *Tracker) fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.emit(Event{Stage: StageError, Status: StatusError, Error: msg}, true, true)
}

func (t *Tracker) emit(ev Event, terminal, forceEmit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	// Never go backwards, whatever the stages report.
	if ev.Percent < t.last {
		ev.Percent = t.last
	}
	if !forceEmit && ev.Percent == t.last {
		return
	}
	t.last = ev.Percent

	t.ch <- ev
	if terminal {
		t.closed = true
		close(t.ch)
	}
}
