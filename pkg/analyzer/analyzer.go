// Package analyzer runs a measurement through the classifier and the
// recommendation engine and hands the outcome to the configured sinks.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/metrics"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/recommend"
)

// ReportStore persists reports
type ReportStore interface {
	Name() string
	Save(report *pkg.RoomReport) error
}

// DecisionLog records the recommendation made for each report
type DecisionLog interface {
	LogDecision(ctx context.Context, d *pkg.Decision) error
}

// Publisher pushes reports to an external system
type Publisher interface {
	Name() string
	PublishReport(ctx context.Context, report *pkg.RoomReport) error
}

// Request is a measurement plus the raw link figures used for the
// stay/move/switch decision. Zero link figures are derived from the sample.
type Request struct {
	classifier.Measurement
	LinkSpeedMbps int `json:"link_speed_mbps,omitempty"`
	FrequencyMHz  int `json:"frequency_mhz,omitempty"`
}

// Analyzer is safe for concurrent use
type Analyzer struct {
	classifier *classifier.Classifier
	engine     *recommend.Engine
	logger     *logx.Logger
	perf       *logx.PerformanceLogger

	store      ReportStore
	decisions  DecisionLog
	publishers []Publisher
	metrics    *metrics.Metrics

	mu        sync.Mutex
	lastLevel map[string]quality.Level
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithStore persists every report
func WithStore(s ReportStore) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithDecisionLog audits every recommendation
func WithDecisionLog(d DecisionLog) Option {
	return func(a *Analyzer) { a.decisions = d }
}

// WithPublisher adds a publisher; may be given more than once
func WithPublisher(p Publisher) Option {
	return func(a *Analyzer) { a.publishers = append(a.publishers, p) }
}

// WithMetrics records Prometheus metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an analyzer. Nil classifier or engine means the defaults.
func New(c *classifier.Classifier, e *recommend.Engine, logger *logx.Logger, opts ...Option) *Analyzer {
	if c == nil {
		c = classifier.NewDefault()
	}
	if e == nil {
		e = recommend.NewEngine()
	}
	if logger == nil {
		logger = &logx.Logger{}
	}
	a := &Analyzer{
		classifier: c,
		engine:     e,
		logger:     logger.WithComponent("analyzer"),
		lastLevel:  make(map[string]quality.Level),
	}
	a.perf = logx.NewPerformanceLogger(a.logger, 0)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classifier returns the classifier in use
func (a *Analyzer) Classifier() *classifier.Classifier {
	return a.classifier
}

// Performance returns the timing stats of the analysis steps
func (a *Analyzer) Performance() *logx.PerformanceLogger {
	return a.perf
}

// Analyze classifies a measurement, decides on an action and distributes
// the report. Sink failures are logged and counted but never returned.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*pkg.RoomReport, error) {
	if req.RoomID == "" && req.RoomName == "" {
		return nil, fmt.Errorf("%w: room_id or room_name is required", quality.ErrInvalidInput)
	}

	timer := a.perf.Start("analyze")
	report, err := a.build(req)
	elapsed := timer.Done(err)
	if err != nil {
		return nil, err
	}

	a.trackLevel(report)
	a.distribute(ctx, report)

	if a.metrics != nil {
		a.metrics.ObserveReport(report, elapsed.Seconds())
	}

	a.logger.Info("Measurement analysed",
		"room", report.Room(),
		"activity", report.Classification.Activity,
		"overall", report.Classification.OverallClassification.String(),
		"score", report.Classification.WeightedScore,
		"action", string(report.Recommendation.Action),
		"reason", report.Recommendation.ReasonCode,
		"rule", report.Rule,
	)
	return report, nil
}

func (a *Analyzer) build(req Request) (*pkg.RoomReport, error) {
	result, err := a.classifier.Evaluate(req.Measurement)
	if err != nil {
		return nil, fmt.Errorf("failed to classify measurement: %w", err)
	}

	location := req.RoomName
	if location == "" {
		location = req.RoomID
	}
	linkSpeed := req.LinkSpeedMbps
	if linkSpeed <= 0 {
		linkSpeed = wholeMbps(req.Sample.BandwidthMbps)
	}

	cm := recommend.Classify(location, result.Activity(), req.Sample.SignalDBm, req.Sample.LatencyMs, linkSpeed, req.FrequencyMHz)
	if req.FrequencyMHz <= 0 && req.FrequencyBand != "" {
		cm.Frequency = req.FrequencyBand
	}
	rec, rule := a.engine.Explain(cm.Input())

	return &pkg.RoomReport{
		Classification: result.Report(),
		Measurement:    cm,
		Recommendation: rec,
		Rule:           rule,
	}, nil
}

// wholeMbps truncates a rate to whole Mbps, clamped to [0, MaxInt32].
// NaN counts as no measurement.
func wholeMbps(mbps float64) int {
	switch {
	case math.IsNaN(mbps) || mbps <= 0:
		return 0
	case mbps >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(mbps)
}

func (a *Analyzer) trackLevel(report *pkg.RoomReport) {
	room := report.Room()
	level := report.Classification.OverallClassification

	a.mu.Lock()
	prev, seen := a.lastLevel[room]
	a.lastLevel[room] = level
	a.mu.Unlock()

	if seen && prev != level {
		a.logger.LogStateChange("room", prev.String(), level.String(), "measurement", map[string]interface{}{
			"room":     room,
			"activity": report.Classification.Activity,
			"score":    report.Classification.WeightedScore,
		})
	}
}

// LastLevel returns the overall level last seen for a room
func (a *Analyzer) LastLevel(room string) (quality.Level, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.lastLevel[room]
	return l, ok
}

func (a *Analyzer) distribute(ctx context.Context, report *pkg.RoomReport) {
	if a.store != nil {
		if err := a.store.Save(report); err != nil {
			a.sinkFailed(a.store.Name(), report, err)
		}
	}

	if a.decisions != nil {
		if err := a.decisions.LogDecision(ctx, pkg.DecisionFromReport(report)); err != nil {
			a.sinkFailed("audit", report, err)
		}
	}

	for _, p := range a.publishers {
		if err := p.PublishReport(ctx, report); err != nil {
			a.sinkFailed(p.Name(), report, err)
		}
	}
}

func (a *Analyzer) sinkFailed(sink string, report *pkg.RoomReport, err error) {
	a.logger.Warn("Failed to write report", "sink", sink, "room", report.Room(), "error", err)
	if a.metrics != nil {
		a.metrics.SinkError(sink)
	}
}

// AnalyzeAll analyses each request in turn, stopping at the first error
func (a *Analyzer) AnalyzeAll(ctx context.Context, reqs []Request) ([]*pkg.RoomReport, error) {
	out := make([]*pkg.RoomReport, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := a.Analyze(ctx, req)
		if err != nil {
			return out, fmt.Errorf("measurement %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

