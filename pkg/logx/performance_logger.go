package logx

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// PerformanceLogger keeps running timing statistics per operation
// (analysis cycles, store writes, API requests) and logs the slow ones.
type PerformanceLogger struct {
	logger        *Logger
	slowThreshold time.Duration

	mu  sync.RWMutex
	ops map[string]*OperationStats
}

// OperationStats is a snapshot of one operation's timings
type OperationStats struct {
	Name         string        `json:"name"`
	Count        int64         `json:"count"`
	Errors       int64         `json:"errors"`
	Total        time.Duration `json:"total"`
	Min          time.Duration `json:"min"`
	Max          time.Duration `json:"max"`
	LastDuration time.Duration `json:"last_duration"`
	LastAt       time.Time     `json:"last_at"`
}

// Avg returns the mean duration
func (s OperationStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// SuccessRate returns the share of calls without error, in percent
func (s OperationStats) SuccessRate() float64 {
	if s.Count == 0 {
		return 100
	}
	return float64(s.Count-s.Errors) / float64(s.Count) * 100
}

// Timer is returned by Start and finished with Done
type Timer struct {
	name  string
	start time.Time
	pl    *PerformanceLogger
}

// NewPerformanceLogger creates a performance logger. Operations slower than
// slowThreshold are logged at warn level; zero means 100ms.
func NewPerformanceLogger(logger *Logger, slowThreshold time.Duration) *PerformanceLogger {
	if slowThreshold <= 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &PerformanceLogger{
		logger:        logger,
		slowThreshold: slowThreshold,
		ops:           make(map[string]*OperationStats),
	}
}

// Start begins timing an operation
func (pl *PerformanceLogger) Start(name string) *Timer {
	return &Timer{name: name, start: time.Now(), pl: pl}
}

// Done records the elapsed time. It returns the duration for callers that
// also feed it to metrics.
func (t *Timer) Done(err error) time.Duration {
	d := time.Since(t.start)
	t.pl.Record(t.name, d, err)
	return d
}

// Record adds one observation
func (pl *PerformanceLogger) Record(name string, d time.Duration, err error) {
	pl.mu.Lock()
	s, ok := pl.ops[name]
	if !ok {
		s = &OperationStats{Name: name, Min: d}
		pl.ops[name] = s
	}
	s.Count++
	s.Total += d
	s.LastDuration = d
	s.LastAt = time.Now()
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	if err != nil {
		s.Errors++
	}
	snapshot := *s
	pl.mu.Unlock()

	switch {
	case err != nil:
		pl.logger.Error("Operation failed",
			"operation", name,
			"duration", d.String(),
			"error", err,
			"success_rate", fmt.Sprintf("%.2f%%", snapshot.SuccessRate()),
		)
	case d > pl.slowThreshold:
		pl.logger.Warn("Slow operation",
			"operation", name,
			"duration", d.String(),
			"avg_duration", snapshot.Avg().String(),
			"threshold", pl.slowThreshold.String(),
		)
	default:
		pl.logger.Debug("Operation completed", "operation", name, "duration", d.String())
	}
}

// Stats returns a copy of one operation's statistics
func (pl *PerformanceLogger) Stats(name string) (OperationStats, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	s, ok := pl.ops[name]
	if !ok {
		return OperationStats{}, false
	}
	return *s, true
}

// All returns copies of every tracked operation, sorted by name
func (pl *PerformanceLogger) All() []OperationStats {
	pl.mu.RLock()
	out := make([]OperationStats, 0, len(pl.ops))
	for _, s := range pl.ops {
		out = append(out, *s)
	}
	pl.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LogSummary writes one info line per operation
func (pl *PerformanceLogger) LogSummary() {
	for _, s := range pl.All() {
		pl.logger.Info("Performance summary",
			"operation", s.Name,
			"count", s.Count,
			"avg_duration", s.Avg().String(),
			"min_duration", s.Min.String(),
			"max_duration", s.Max.String(),
			"success_rate", fmt.Sprintf("%.2f%%", s.SuccessRate()),
		)
	}
}

// Reset clears all statistics
func (pl *PerformanceLogger) Reset() {
	pl.mu.Lock()
	pl.ops = make(map[string]*OperationStats)
	pl.mu.Unlock()
}
