package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	QueriesProcessed     map[string]uint64
	QueryDurationCount   uint64
	QueryDurationTotalNs int64
	LLMCacheHits         uint64
	LLMCacheMisses       uint64
	LLMProviderCalls     map[string]uint64
	GeoCacheHits         uint64
	GeoCacheMisses       uint64
	TasksPublished       map[string]uint64
	TasksProcessed       map[string]uint64
	QueueDepths          map[string]int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu sync.Mutex

	queriesProcessed     map[string]uint64
	queryDurationCount   uint64
	queryDurationTotalNs int64
	llmCacheHits         uint64
	llmCacheMisses       uint64
	llmProviderCalls     map[string]uint64
	geoCacheHits         uint64
	geoCacheMisses       uint64
	tasksPublished       map[string]uint64
	tasksProcessed       map[string]uint64
	queueDepths          map[string]int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		queriesProcessed: make(map[string]uint64),
		llmProviderCalls: make(map[string]uint64),
		tasksPublished:   make(map[string]uint64),
		tasksProcessed:   make(map[string]uint64),
		queueDepths:      make(map[string]int64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		QueriesProcessed:     make(map[string]uint64, len(m.queriesProcessed)),
		QueryDurationCount:   m.queryDurationCount,
		QueryDurationTotalNs: m.queryDurationTotalNs,
		LLMCacheHits:         m.llmCacheHits,
		LLMCacheMisses:       m.llmCacheMisses,
		LLMProviderCalls:     make(map[string]uint64, len(m.llmProviderCalls)),
		GeoCacheHits:         m.geoCacheHits,
		GeoCacheMisses:       m.geoCacheMisses,
		TasksPublished:       make(map[string]uint64, len(m.tasksPublished)),
		TasksProcessed:       make(map[string]uint64, len(m.tasksProcessed)),
		QueueDepths:          make(map[string]int64, len(m.queueDepths)),
	}
	for k, v := range m.queriesProcessed {
		s.QueriesProcessed[k] = v
	}
	for k, v := range m.llmProviderCalls {
		s.LLMProviderCalls[k] = v
	}
	for k, v := range m.tasksPublished {
		s.TasksPublished[k] = v
	}
	for k, v := range m.tasksProcessed {
		s.TasksProcessed[k] = v
	}
	for k, v := range m.queueDepths {
		s.QueueDepths[k] = v
	}
	return s
}

// IncQueryProcessed increments the per-status query counter.
func (m *InMemoryRecorder) IncQueryProcessed(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queriesProcessed[status]++
}

// ObserveQueryDuration records pipeline duration.
func (m *InMemoryRecorder) ObserveQueryDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryDurationCount++
	m.queryDurationTotalNs += duration.Nanoseconds()
}

// IncLLMCacheHit increments the model response cache hit counter.
func (m *InMemoryRecorder) IncLLMCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmCacheHits++
}

// IncLLMCacheMiss increments the model response cache miss counter.
func (m *InMemoryRecorder) IncLLMCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmCacheMisses++
}

// IncLLMProviderCall increments the per-status provider call counter.
func (m *InMemoryRecorder) IncLLMProviderCall(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmProviderCalls[status]++
}

// IncGeoCacheHit increments the feature cache hit counter.
func (m *InMemoryRecorder) IncGeoCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geoCacheHits++
}

// IncGeoCacheMiss increments the feature cache miss counter.
func (m *InMemoryRecorder) IncGeoCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geoCacheMisses++
}

// IncTaskPublished increments the per-queue publish counter.
func (m *InMemoryRecorder) IncTaskPublished(queue, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasksPublished[queue+":"+status]++
}

// IncTaskProcessed increments the per-queue processed counter.
func (m *InMemoryRecorder) IncTaskProcessed(queue, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasksProcessed[queue+":"+status]++
}

// SetQueueDepth records the current stream depth for a queue.
func (m *InMemoryRecorder) SetQueueDepth(queue string, depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepths[queue] = depth
}
