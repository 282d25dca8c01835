package matcher

// Stage names reported to progress observers
const (
	StageRefundDetection    = "refund_detection"
	StageDuplicateDetection = "duplicate_detection"
)

// ProgressObserver receives progress notifications from the matching loops.
// Matching never depends on the observer. Implementations must be safe for
// concurrent use because both matchers may report at the same time.
type ProgressObserver interface {
	OnProgress(stage string, processed, total int)
}

// ProgressFunc adapts a plain function to ProgressObserver
type ProgressFunc func(stage string, processed, total int)

func (f ProgressFunc) OnProgress(stage string, processed, total int) {
	f(stage, processed, total)
}

type noopObserver struct{}

func (noopObserver) OnProgress(string, int, int) {}

// Option configures a matcher
type Option func(*options)

type options struct {
	observer ProgressObserver
	scorer   SimilarityScorer
}

// WithProgress reports scan progress to observer
func WithProgress(observer ProgressObserver) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithScorer overrides the similarity implementation chosen by the config
func WithScorer(scorer SimilarityScorer) Option {
	return func(o *options) {
		if scorer != nil {
			o.scorer = scorer
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{observer: noopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// progressSteps is roughly the number of notifications a full scan emits
const progressSteps = 100

// progressReporter throttles notifications to roughly one per percent.
// An empty scan reports (0, 0) once, which observers treat as complete.
type progressReporter struct {
	observer ProgressObserver
	stage    string
	total    int
	every    int
}

func newProgressReporter(observer ProgressObserver, stage string, total int) *progressReporter {
	every := total / progressSteps
	if every < 1 {
		every = 1
	}
	r := &progressReporter{observer: observer, stage: stage, total: total, every: every}
	observer.OnProgress(stage, 0, total)
	return r
}

func (r *progressReporter) step(processed int) {
	if processed == r.total || processed%r.every == 0 {
		r.observer.OnProgress(r.stage, processed, r.total)
	}
}
