package metrics

import (
	"time"

	"copilot/pkg/graph"
)

// GraphObserver adapts a Recorder to the graph executor's observer hook.
type GraphObserver struct {
	Recorder Recorder
}

// NewGraphObserver wraps rec; a nil rec becomes a NopRecorder.
func NewGraphObserver(rec Recorder) *GraphObserver {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &GraphObserver{Recorder: rec}
}

func (o *GraphObserver) NodeStarted(string, graph.NodeID) {}

func (o *GraphObserver) NodeFinished(_ string, node graph.NodeID, d time.Duration, err error) {
	o.Recorder.ObserveNode(string(node), d, err)
}
