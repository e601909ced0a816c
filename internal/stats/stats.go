// Package stats reports process-level health for the daemon's operational
// endpoint: memory, goroutines, uptime, and request/error counters.
package stats

import (
	"runtime"
	"sync"
	"time"
)

// Collector accumulates request/error counters and reports them alongside
// live runtime statistics. Safe for concurrent use.
type Collector struct {
	startTime time.Time

	mu            sync.Mutex
	requestCount  int64
	tokenCount    int64
	errorCount    int64
	totalDuration time.Duration
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Stats is a point-in-time snapshot of process health.
type Stats struct {
	Memory     MemoryStats `json:"memory"`
	Goroutines int         `json:"goroutines"`
	Uptime     string      `json:"uptime"`

	RequestCount int64   `json:"request_count"`
	TokenCount   int64   `json:"token_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	DBSizeBytes int64   `json:"db_size_bytes"`
	DBSizeMB    float64 `json:"db_size_mb"`
	DBPath      string  `json:"db_path,omitempty"`
}

// MemoryStats reports heap and GC statistics from runtime.MemStats.
type MemoryStats struct {
	HeapAllocBytes int64   `json:"heap_alloc_bytes"`
	HeapAllocMB    float64 `json:"heap_alloc_mb"`
	HeapSysBytes   int64   `json:"heap_sys_bytes"`
	HeapObjects    uint64  `json:"heap_objects"`
	NumGC          uint32  `json:"num_gc"`
}

// RecordRequest records a completed request's token count and latency.
func (c *Collector) RecordRequest(tokens int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount++
	c.tokenCount += int64(tokens)
	c.totalDuration += duration
}

// RecordError records a failed request.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}

// Collect returns current process statistics. dbSize/dbPath describe the
// conversation store, since a single lanternd process co-locates both.
func (c *Collector) Collect(dbSize int64, dbPath string) Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.mu.Lock()
	requests, tokens, errs, dur := c.requestCount, c.tokenCount, c.errorCount, c.totalDuration
	c.mu.Unlock()

	avgLatency := float64(0)
	if requests > 0 {
		avgLatency = float64(dur.Milliseconds()) / float64(requests)
	}

	return Stats{
		Memory: MemoryStats{
			HeapAllocBytes: int64(m.HeapAlloc),
			HeapAllocMB:    bytesToMB(int64(m.HeapAlloc)),
			HeapSysBytes:   int64(m.HeapSys),
			HeapObjects:    m.HeapObjects,
			NumGC:          m.NumGC,
		},
		Goroutines:   runtime.NumGoroutine(),
		Uptime:       time.Since(c.startTime).String(),
		RequestCount: requests,
		TokenCount:   tokens,
		ErrorCount:   errs,
		AvgLatencyMs: avgLatency,
		DBSizeBytes:  dbSize,
		DBSizeMB:     bytesToMB(dbSize),
		DBPath:       dbPath,
	}
}

func bytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
