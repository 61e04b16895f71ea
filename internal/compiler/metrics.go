package compiler

import (
	"sync"
	"time"
)

// Metrics is a snapshot of compile counters.
type Metrics struct {
	TotalCompiles        int64
	SuccessfulCompiles   int64
	FailedCompiles       int64
	SourceCacheHits      int64
	EvaluationCacheHits  int64
	DeduplicatedCompiles int64
	AverageDuration      time.Duration
	TotalDuration        time.Duration
}

// SuccessRate returns the success rate as a percentage
func (m Metrics) SuccessRate() float64 {
	if m.TotalCompiles == 0 {
		return 0.0
	}
	return float64(m.SuccessfulCompiles) / float64(m.TotalCompiles) * 100.0
}

// CacheHitRate returns the share of compiles served from the source cache
// as a percentage.
func (m Metrics) CacheHitRate() float64 {
	if m.TotalCompiles == 0 {
		return 0.0
	}
	return float64(m.SourceCacheHits) / float64(m.TotalCompiles) * 100.0
}

// compileOutcome is what one Compile caller observed.
type compileOutcome struct {
	duration  time.Duration
	err       error
	sourceHit bool
	evalHit   bool
	shared    bool
}

// metricsRecorder accumulates compile outcomes.
type metricsRecorder struct {
	mutex sync.RWMutex
	m     Metrics
}

func (r *metricsRecorder) record(o compileOutcome) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.m.TotalCompiles++
	r.m.TotalDuration += o.duration

	if o.err != nil {
		r.m.FailedCompiles++
	} else {
		r.m.SuccessfulCompiles++
	}
	if o.sourceHit {
		r.m.SourceCacheHits++
	}
	if o.evalHit {
		r.m.EvaluationCacheHits++
	}
	if o.shared {
		r.m.DeduplicatedCompiles++
	}

	r.m.AverageDuration = r.m.TotalDuration / time.Duration(r.m.TotalCompiles)
}

func (r *metricsRecorder) snapshot() Metrics {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.m
}

func (r *metricsRecorder) reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.m = Metrics{}
}
