// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// The Prometheus implementation backs /metrics; tests use the in-memory one.
type Recorder interface {
	// Query pipeline metrics
	IncQueryProcessed(status string) // status: "success", "degraded", "failed"
	ObserveQueryDuration(duration time.Duration)

	// Language model metrics
	IncLLMCacheHit()
	IncLLMCacheMiss()
	IncLLMProviderCall(status string) // status: "success", "unavailable", "error"

	// Geo provider metrics
	IncGeoCacheHit()
	IncGeoCacheMiss()

	// Task pipeline metrics
	IncTaskPublished(queue, status string) // status: "success" or "dropped"
	IncTaskProcessed(queue, status string) // status: "success", "failed", "dead"
	SetQueueDepth(queue string, depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
