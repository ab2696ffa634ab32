// Package pkg holds the types shared by the daemon's storage, audit and
// publishing layers.
package pkg

import (
	"time"

	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/recommend"
)

// RoomReport is the full outcome of analysing one room measurement: the
// weighted classification and the independent stay/move/switch decision.
type RoomReport struct {
	Classification classifier.Report               `json:"classification"`
	Measurement    recommend.ClassifiedMeasurement `json:"measurement"`
	Recommendation recommend.Recommendation        `json:"recommendation"`
	Rule           string                          `json:"rule"`
}

// Room returns the room key used for storage and topics
func (r *RoomReport) Room() string {
	if r.Classification.RoomID != "" {
		return r.Classification.RoomID
	}
	return r.Classification.Room
}

// Timestamp returns when the classification was made
func (r *RoomReport) Timestamp() time.Time {
	return r.Classification.CreatedAt
}

// Decision is one audited recommendation
type Decision struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Room           string    `json:"room"`
	Activity       string    `json:"activity"`
	Action         string    `json:"action"`
	ReasonCode     string    `json:"reason_code"`
	TargetLocation string    `json:"target_location,omitempty"`
	Rule           string    `json:"rule"`
	Overall        string    `json:"overall"`
	WeightedScore  float64   `json:"weighted_score"`
	Acceptable     bool      `json:"acceptable"`
}

// DecisionFromReport flattens a report into an audit row
func DecisionFromReport(r *RoomReport) *Decision {
	return &Decision{
		ID:             r.Classification.ID,
		Timestamp:      r.Classification.CreatedAt,
		Room:           r.Room(),
		Activity:       r.Classification.Activity,
		Action:         string(r.Recommendation.Action),
		ReasonCode:     r.Recommendation.ReasonCode,
		TargetLocation: r.Recommendation.TargetLocation,
		Rule:           r.Rule,
		Overall:        r.Classification.OverallClassification.String(),
		WeightedScore:  r.Classification.WeightedScore,
		Acceptable:     r.Classification.IsAcceptable,
	}
}
