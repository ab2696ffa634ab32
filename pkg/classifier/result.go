package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

// metricAdvice is given for every metric graded Bad or Marginal
var metricAdvice = map[quality.Metric][2]string{
	quality.SignalStrength: {
		"Move closer to the router or consider a WiFi extender",
		"Check for physical obstructions between device and router",
	},
	quality.Latency: {
		"Check for network congestion or switch to 5GHz band",
		"Consider using a wired connection for better latency",
	},
	quality.Bandwidth: {
		"Upgrade your internet plan or check for bandwidth limits",
		"Close unnecessary applications using bandwidth",
	},
	quality.Jitter: {
		"Check for network interference or switch to a less congested channel",
		"Consider using QoS settings on your router",
	},
	quality.PacketLoss: {
		"Check for network interference or hardware issues",
		"Try restarting your router and modem",
	},
}

// activityAdvice is given when the overall level is Okay or worse
var activityAdvice = map[string][2]string{
	activity.Gaming: {
		"Consider using a gaming router with QoS features",
		"Use a wired connection for the best gaming experience",
	},
	activity.Streaming: {
		"Lower video quality settings if available",
		"Schedule streaming during off-peak hours",
	},
	activity.VideoCall: {
		"Close other applications during video calls",
		"Use a wired connection for important meetings",
	},
}

// emphasized pairs get an extra clause in the reasoning
var emphasized = map[string]quality.Metric{
	activity.Gaming:    quality.Latency,
	activity.Streaming: quality.Bandwidth,
	activity.VideoCall: quality.Jitter,
}

// minimumScore is the overall score an activity needs to be acceptable
var minimumScore = map[string]int{
	activity.Gaming:    quality.Good.Score(),
	activity.VideoCall: quality.Good.Score(),
	activity.Streaming: quality.Okay.Score(),
	activity.General:   quality.Bad.Score(),
}

const defaultMinimumScore = 3

// MinimumScore returns the overall score needed for the activity
func MinimumScore(activity string) int {
	if s, ok := minimumScore[strings.ToLower(strings.TrimSpace(activity))]; ok {
		return s
	}
	return defaultMinimumScore
}

// Result is the outcome of one measurement cycle. It is built once by
// Classifier.Evaluate and never changes afterwards.
type Result struct {
	id             string
	roomID         string
	roomName       string
	activity       string
	band           string
	sample         quality.Sample
	classification quality.Classification
	profile        activity.Profile
	score          float64
	overall        quality.Level
	critical       quality.Metric
	criticalBelow  bool
	reasoning      string
	advice         []string
	acceptable     bool
	createdAt      time.Time
}

type resultInput struct {
	id             string
	measurement    Measurement
	activity       string
	profile        activity.Profile
	classification quality.Classification
	score          float64
	overall        quality.Level
	critical       quality.Metric
	criticalBelow  bool
	createdAt      time.Time
}

func newResult(in resultInput) *Result {
	r := &Result{
		id:             in.id,
		roomID:         in.measurement.RoomID,
		roomName:       in.measurement.RoomName,
		activity:       in.activity,
		band:           in.measurement.FrequencyBand,
		sample:         in.measurement.Sample,
		classification: in.classification,
		profile:        in.profile,
		score:          in.score,
		overall:        in.overall,
		critical:       in.critical,
		criticalBelow:  in.criticalBelow,
		createdAt:      in.createdAt,
	}
	if r.roomName == "" {
		r.roomName = r.roomID
	}
	r.reasoning = r.buildReasoning()
	r.advice = r.buildAdvice()
	r.acceptable = r.overall.Score() >= MinimumScore(r.activity)
	return r
}

func (r *Result) buildReasoning() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s WiFi for %s in %s: %s is %s",
		r.overall, r.activity, r.roomName,
		r.critical.DisplayName(),
		strings.ToLower(r.classification.Level(r.critical).String()))

	if m, ok := emphasized[r.activity]; ok && m == r.critical {
		fmt.Fprintf(&b, ", and %s is very important for %s", m.DisplayName(), r.activity)
	}
	return b.String()
}

func (r *Result) buildAdvice() []string {
	advice := []string{}
	for _, m := range quality.Metrics {
		if r.classification.Level(m).Score() <= quality.Bad.Score() {
			pair := metricAdvice[m]
			advice = append(advice, pair[0], pair[1])
		}
	}
	if r.overall.Score() <= quality.Okay.Score() {
		if pair, ok := activityAdvice[r.activity]; ok {
			advice = append(advice, pair[0], pair[1])
		}
	}
	return advice
}

func (r *Result) ID() string                             { return r.id }
func (r *Result) RoomID() string                         { return r.roomID }
func (r *Result) RoomName() string                       { return r.roomName }
func (r *Result) Activity() string                       { return r.activity }
func (r *Result) FrequencyBand() string                  { return r.band }
func (r *Result) Sample() quality.Sample                 { return r.sample }
func (r *Result) Classification() quality.Classification { return r.classification }
func (r *Result) Profile() activity.Profile              { return r.profile }
func (r *Result) WeightedScore() float64                 { return r.score }
func (r *Result) Overall() quality.Level                 { return r.overall }
func (r *Result) Reasoning() string                      { return r.reasoning }
func (r *Result) CreatedAt() time.Time                   { return r.createdAt }

// MostCriticalMetric returns the activity's most important metric and
// whether it is below Excellent
func (r *Result) MostCriticalMetric() (quality.Metric, bool) {
	return r.critical, r.criticalBelow
}

// Recommendations returns a copy of the advice list
func (r *Result) Recommendations() []string {
	out := make([]string, len(r.advice))
	copy(out, r.advice)
	return out
}

// IsAcceptableForActivity reports whether the overall level meets the
// activity's minimum
func (r *Result) IsAcceptableForActivity() bool {
	return r.acceptable
}

// MetricDetail describes one metric in the context of the activity
type MetricDetail struct {
	Metric     quality.Metric `json:"metric"`
	Level      quality.Level  `json:"level"`
	Importance float64        `json:"importance"`
	Reasoning  string         `json:"reasoning"`
}

// Critical reports whether the activity weighs this metric heavily
func (d MetricDetail) Critical() bool {
	return d.Importance >= 0.8
}

// PerformingWell is Good or better
func (d MetricDetail) PerformingWell() bool {
	return d.Level >= quality.Good
}

// PerformingPoorly is Bad or worse
func (d MetricDetail) PerformingPoorly() bool {
	return d.Level <= quality.Bad
}

// Summary renders "SIGNAL STRENGTH: Good (importance: 0.8)"
func (d MetricDetail) Summary() string {
	return fmt.Sprintf("%s: %s (importance: %.1f)",
		strings.ToUpper(d.Metric.DisplayName()), d.Level, d.Importance)
}

// MetricDetail returns the detail for one metric
func (r *Result) MetricDetail(m quality.Metric) MetricDetail {
	level := r.classification.Level(m)
	importance := r.profile.Weight(m)
	return MetricDetail{
		Metric:     m,
		Level:      level,
		Importance: importance,
		Reasoning: fmt.Sprintf("%s is %s and is %s for %s",
			m.DisplayName(), strings.ToLower(level.String()),
			activity.ImportanceLabel(importance), r.activity),
	}
}

// MetricDetails returns the details of all metrics in priority order
func (r *Result) MetricDetails() []MetricDetail {
	out := make([]MetricDetail, 0, len(quality.Metrics))
	for _, m := range quality.Metrics {
		out = append(out, r.MetricDetail(m))
	}
	return out
}

// WellPerformingMetrics lists metrics graded Good or better
func (r *Result) WellPerformingMetrics() []quality.Metric {
	return r.classification.Filter(func(l quality.Level) bool { return l >= quality.Good })
}

// PoorlyPerformingMetrics lists metrics graded Bad or worse
func (r *Result) PoorlyPerformingMetrics() []quality.Metric {
	return r.classification.Filter(func(l quality.Level) bool { return l <= quality.Bad })
}

// MostImportantPoorMetric returns the poorly performing metric with the
// highest positive weight. The second return is false when there is none.
func (r *Result) MostImportantPoorMetric() (quality.Metric, bool) {
	var (
		best    quality.Metric
		highest float64
		found   bool
	)
	for _, m := range r.PoorlyPerformingMetrics() {
		if w := r.profile.Weight(m); w > highest {
			best, highest, found = m, w, true
		}
	}
	return best, found
}

// Summary is a one-line description for logs and the CLI
func (r *Result) Summary() string {
	return fmt.Sprintf("%s WiFi in %s for %s: %s", r.overall, r.roomName, r.activity, r.reasoning)
}

// Report is the serialized form of a Result
type Report struct {
	ID                    string                 `json:"id"`
	RoomID                string                 `json:"room_id"`
	Room                  string                 `json:"room"`
	Activity              string                 `json:"activity"`
	FrequencyBand         string                 `json:"frequency_band,omitempty"`
	Sample                quality.Sample         `json:"sample"`
	OverallClassification quality.Level          `json:"overall_classification"`
	PerMetric             quality.Classification `json:"per_metric"`
	WeightedScore         float64                `json:"weighted_score"`
	MostCriticalMetric    quality.Metric         `json:"most_critical_metric"`
	CriticalBelowBest     bool                   `json:"most_critical_below_best"`
	Reasoning             string                 `json:"reasoning"`
	Recommendations       []string               `json:"recommendations"`
	IsAcceptable          bool                   `json:"is_acceptable_for_activity"`
	CreatedAt             time.Time              `json:"created_at"`
}

// Report converts the result to its serialized form
func (r *Result) Report() Report {
	return Report{
		ID:                    r.id,
		RoomID:                r.roomID,
		Room:                  r.roomName,
		Activity:              r.activity,
		FrequencyBand:         r.band,
		Sample:                r.sample,
		OverallClassification: r.overall,
		PerMetric:             r.classification,
		WeightedScore:         r.score,
		MostCriticalMetric:    r.critical,
		CriticalBelowBest:     r.criticalBelow,
		Reasoning:             r.reasoning,
		Recommendations:       r.Recommendations(),
		IsAcceptable:          r.acceptable,
		CreatedAt:             r.createdAt,
	}
}
