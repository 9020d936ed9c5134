package observability

import (
	"time"
)

// Stopwatch measures a waterfall run or a single provider step and reports
// the elapsed time to a Metrics sink.
type Stopwatch struct {
	start   time.Time
	metrics Metrics
	name    string
	tags    []Tag
}

// StartStopwatch starts timing for the named histogram. A nil metrics sink
// discards observations.
func StartStopwatch(metrics Metrics, name string, tags ...Tag) *Stopwatch {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Stopwatch{start: time.Now(), metrics: metrics, name: name, tags: tags}
}

// Elapsed returns the time since start without recording it.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Observe records the elapsed time with the stopwatch tags plus extra, and
// returns it.
func (s *Stopwatch) Observe(extra ...Tag) time.Duration {
	d := time.Since(s.start)
	tags := s.tags
	if len(extra) > 0 {
		tags = append(append(make([]Tag, 0, len(s.tags)+len(extra)), s.tags...), extra...)
	}
	s.metrics.Timing(s.name, d, tags...)
	return d
}

// Milliseconds is Elapsed in the unit used for DurationKey log attributes.
func (s *Stopwatch) Milliseconds() int64 {
	return s.Elapsed().Milliseconds()
}
