// Package metrics provides Prometheus-based metrics recording for analyze
// requests and graph node execution.
package metrics

import (
	"time"
)

// Recorder is the metrics surface the copilot reports into.
type Recorder interface {
	// ObserveRequest records one completed analyze request.
	ObserveRequest(mode string, success bool, duration time.Duration)
	// ObserveNode records one node execution inside a graph run.
	ObserveNode(node string, duration time.Duration, err error)
	// IncBranchSkip counts an analysis or action branch skipped by routing.
	IncBranchSkip(branch string)
	// IncFallback counts a low-confidence fallback rerun.
	IncFallback()
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveRequest(string, bool, time.Duration) {}
func (NopRecorder) ObserveNode(string, time.Duration, error)   {}
func (NopRecorder) IncBranchSkip(string)                       {}
func (NopRecorder) IncFallback()                               {}
