package capture

import (
	"sync"
	"sync/atomic"
	"time"
)

// SnapshotStats tracks listing statistics
type SnapshotStats struct {
	startTime        time.Time
	snapshots        uint64
	failures         uint64
	totalBytes       uint64
	totalRecords     uint64
	lastSnapshotTime time.Time
	mu               sync.RWMutex
}

// NewSnapshotStats creates a new statistics tracker
func NewSnapshotStats() *SnapshotStats {
	return &SnapshotStats{
		startTime: time.Now(),
	}
}

// IncrementSnapshots counts a successful listing
func (s *SnapshotStats) IncrementSnapshots() {
	atomic.AddUint64(&s.snapshots, 1)
}

// IncrementFailures counts a failed listing
func (s *SnapshotStats) IncrementFailures() {
	atomic.AddUint64(&s.failures, 1)
}

// IncrementBytes adds to the byte counter
func (s *SnapshotStats) IncrementBytes(bytes uint64) {
	atomic.AddUint64(&s.totalBytes, bytes)
}

// AddRecords adds parsed records to the record counter
func (s *SnapshotStats) AddRecords(n int) {
	atomic.AddUint64(&s.totalRecords, uint64(n))
}

// UpdateLastSnapshotTime updates the last snapshot timestamp
func (s *SnapshotStats) UpdateLastSnapshotTime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSnapshotTime = time.Now()
}

// GetStats returns a snapshot of current statistics
func (s *SnapshotStats) GetStats() map[string]interface{} {
	s.mu.RLock()
	last := s.lastSnapshotTime
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"snapshots":      atomic.LoadUint64(&s.snapshots),
		"failures":       atomic.LoadUint64(&s.failures),
		"total_bytes":    atomic.LoadUint64(&s.totalBytes),
		"total_records":  atomic.LoadUint64(&s.totalRecords),
	}

	if !last.IsZero() {
		stats["last_snapshot_ago_seconds"] = time.Since(last).Seconds()
		stats["last_snapshot_time"] = last.Format(time.RFC3339)
	} else {
		stats["last_snapshot_ago_seconds"] = -1
		stats["last_snapshot_time"] = "never"
	}

	return stats
}
