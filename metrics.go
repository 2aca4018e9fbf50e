package corert

import "sync/atomic"

// Metrics tracks low-overhead runtime counters for a [Context], enabled via
// [WithMetrics]. It is a deliberately narrower cousin of the teacher's
// Metrics/LatencyMetrics/TPSCounter trio (metrics.go, psquare.go): corert
// tracks counts, not latency percentiles, since nothing in SPEC_FULL.md
// calls for percentile reporting and the teacher's P-square estimator
// would be dead weight here.
type Metrics struct {
	enabled bool

	nextTicksRun    atomic.Int64
	genericTicksRun atomic.Int64
	immediatesRun   atomic.Int64
	ioDispatched    atomic.Int64
	timersFired     atomic.Int64
	fatalsConsumed  atomic.Int64
	iterations      atomic.Int64
}

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	NextTicksRun    int64
	GenericTicksRun int64
	ImmediatesRun   int64
	IODispatched    int64
	TimersFired     int64
	FatalsConsumed  int64
	Iterations      int64
}

func newMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

func (m *Metrics) recordNextTick() {
	if m.enabled {
		m.nextTicksRun.Add(1)
	}
}

func (m *Metrics) recordGenericTick() {
	if m.enabled {
		m.genericTicksRun.Add(1)
	}
}

func (m *Metrics) recordImmediate() {
	if m.enabled {
		m.immediatesRun.Add(1)
	}
}

func (m *Metrics) recordIO(n int) {
	if m.enabled {
		m.ioDispatched.Add(int64(n))
	}
}

func (m *Metrics) recordTimer() {
	if m.enabled {
		m.timersFired.Add(1)
	}
}

func (m *Metrics) recordFatalConsumed() {
	if m.enabled {
		m.fatalsConsumed.Add(1)
	}
}

func (m *Metrics) recordIteration() {
	if m.enabled {
		m.iterations.Add(1)
	}
}

// Snapshot returns the current counter values. Safe from any goroutine.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		NextTicksRun:    m.nextTicksRun.Load(),
		GenericTicksRun: m.genericTicksRun.Load(),
		ImmediatesRun:   m.immediatesRun.Load(),
		IODispatched:    m.ioDispatched.Load(),
		TimersFired:     m.timersFired.Load(),
		FatalsConsumed:  m.fatalsConsumed.Load(),
		Iterations:      m.iterations.Load(),
	}
}
