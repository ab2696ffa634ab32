package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/recommend"
)

func TestObserveReport(t *testing.T) {
	m := New("")
	r := &pkg.RoomReport{
		Classification: classifier.Report{
			RoomID:                "den",
			Activity:              "gaming",
			OverallClassification: quality.Good,
			WeightedScore:         4.1,
			IsAcceptable:          true,
		},
		Recommendation: recommend.Recommendation{Action: recommend.StayCurrent, ReasonCode: recommend.ReasonSufficientForActivity},
	}

	m.ObserveReport(r, 0.002)
	m.ObserveReport(r, 0.003)
	m.SinkError("mqtt")
	m.ObserveProbe(4, 1.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.classifications.WithLabelValues("gaming", "Good")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recommendations.WithLabelValues("stay_current", "sufficient_for_activity")))
	assert.Equal(t, 4.1, testutil.ToFloat64(m.roomScore.WithLabelValues("den")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.roomAcceptable.WithLabelValues("den", "gaming")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkErrors.WithLabelValues("mqtt")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.probeLoss))
}

func TestHandler(t *testing.T) {
	m := New("hifiwifi")
	m.SinkError("kafka")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `hifiwifi_sink_errors_total{sink="kafka"} 1`), body)
}
