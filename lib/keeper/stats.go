package keeper

import (
	"math"
	"sync/atomic"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/rcrowley/go-metrics"
)

// latencySampleSize is the reservoir size of the latency histograms
const latencySampleSize = 1028

// requestStats accumulates request latencies (ms) and packet counters.
// It is used for the whole server and for every single connection.
//
// The histogram samples a reservoir, so it only serves the average. The
// extremes are tracked over every request.
type requestStats struct {
	latency    metrics.Histogram
	minLatency atomic.Int64
	maxLatency atomic.Int64
	received   metrics.Counter
	sent       metrics.Counter
}

func newRequestStats() *requestStats {
	s := &requestStats{
		latency:  metrics.NewHistogram(metrics.NewUniformSample(latencySampleSize)),
		received: metrics.NewCounter(),
		sent:     metrics.NewCounter(),
	}
	s.minLatency.Store(math.MaxInt64)
	return s
}

// observe records the latency of one answered request
func (s *requestStats) observe(latency int64) {
	s.latency.Update(latency)
	for {
		cur := s.minLatency.Load()
		if latency >= cur || s.minLatency.CompareAndSwap(cur, latency) {
			break
		}
	}
	for {
		cur := s.maxLatency.Load()
		if latency <= cur || s.maxLatency.CompareAndSwap(cur, latency) {
			break
		}
	}
}

func (s *requestStats) snapshot() fourlw.ServerStats {
	h := s.latency.Snapshot()
	minLatency := s.minLatency.Load()
	if minLatency == math.MaxInt64 {
		minLatency = 0
	}
	return fourlw.ServerStats{
		MinLatency:      minLatency,
		AvgLatency:      int64(h.Mean()),
		MaxLatency:      s.maxLatency.Load(),
		PacketsReceived: s.received.Count(),
		PacketsSent:     s.sent.Count(),
	}
}

func (s *requestStats) reset() {
	s.latency.Clear()
	s.minLatency.Store(math.MaxInt64)
	s.maxLatency.Store(0)
	s.received.Clear()
	s.sent.Clear()
}
