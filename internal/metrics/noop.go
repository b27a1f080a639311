package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncQueryProcessed is a no-op.
func (n *NoopRecorder) IncQueryProcessed(status string) {}

// ObserveQueryDuration is a no-op.
func (n *NoopRecorder) ObserveQueryDuration(duration time.Duration) {}

// IncLLMCacheHit is a no-op.
func (n *NoopRecorder) IncLLMCacheHit() {}

// IncLLMCacheMiss is a no-op.
func (n *NoopRecorder) IncLLMCacheMiss() {}

// IncLLMProviderCall is a no-op.
func (n *NoopRecorder) IncLLMProviderCall(status string) {}

// IncGeoCacheHit is a no-op.
func (n *NoopRecorder) IncGeoCacheHit() {}

// IncGeoCacheMiss is a no-op.
func (n *NoopRecorder) IncGeoCacheMiss() {}

// IncTaskPublished is a no-op.
func (n *NoopRecorder) IncTaskPublished(queue, status string) {}

// IncTaskProcessed is a no-op.
func (n *NoopRecorder) IncTaskProcessed(queue, status string) {}

// SetQueueDepth is a no-op.
func (n *NoopRecorder) SetQueueDepth(queue string, depth int64) {}
