package loadgen

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts match submissions. It is safe for concurrent use.
type Stats struct {
	start time.Time

	accepted atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration // accepted submissions only
}

// NewStats starts the clock for a run.
func NewStats() *Stats {
	return &Stats{start: time.Now(), latencies: make([]time.Duration, 0, 1024)}
}

// RecordAccepted counts a submission the server took, with its round trip.
func (s *Stats) RecordAccepted(latency time.Duration) {
	s.accepted.Add(1)
	s.mu.Lock()
	s.latencies = append(s.latencies, latency)
	s.mu.Unlock()
}

// RecordRejected counts a submission the server answered with an error status.
func (s *Stats) RecordRejected() { s.rejected.Add(1) }

// RecordFailed counts a submission that never got an answer.
func (s *Stats) RecordFailed() { s.failed.Add(1) }

// Snapshot is a point-in-time view of Stats.
type Snapshot struct {
	Total    uint64
	Accepted uint64
	Rejected uint64
	Failed   uint64
	Elapsed  time.Duration

	Rate        float64 // submissions per second
	SuccessRate float64 // percent accepted

	Avg, P50, P95, P99 time.Duration
}

// Snapshot summarizes the run so far.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Failed:   s.failed.Load(),
		Elapsed:  time.Since(s.start),
	}
	snap.Total = snap.Accepted + snap.Rejected + snap.Failed
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.Rate = float64(snap.Total) / secs
	}
	if snap.Total > 0 {
		snap.SuccessRate = float64(snap.Accepted) / float64(snap.Total) * 100
	}

	s.mu.Lock()
	sorted := append([]time.Duration(nil), s.latencies...)
	s.mu.Unlock()
	snap.Avg, snap.P50, snap.P95, snap.P99 = Percentiles(sorted)
	return snap
}

// Percentiles returns the mean and the 50th, 95th and 99th percentile of
// latencies, picking the element at index len*p/100. latencies is sorted in
// place.
func Percentiles(latencies []time.Duration) (avg, p50, p95, p99 time.Duration) {
	n := len(latencies)
	if n == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(p int) time.Duration {
		return latencies[min(n*p/100, n-1)]
	}
	return sum / time.Duration(n), at(50), at(95), at(99)
}

// FormatElapsed renders d as hh:mm:ss.
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}
