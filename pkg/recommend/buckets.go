package recommend

import "strings"

// Bucket is the coarse grading used by the recommendation rules. It is a
// separate vocabulary from quality.Level and the two are never converted
// into each other.
type Bucket string

const (
	BucketExcellent Bucket = "excellent"
	BucketGood      Bucket = "good"
	BucketFair      Bucket = "fair"
	BucketPoor      Bucket = "poor"
	BucketVeryPoor  Bucket = "very_poor"
)

// Frequency bands
const (
	Band24GHz = "2.4GHz"
	Band5GHz  = "5GHz"
)

// SignalBucket grades RSSI: >= -50 excellent, >= -60 good, >= -70 fair,
// >= -80 poor, else very_poor
func SignalBucket(dBm int) Bucket {
	switch {
	case dBm >= -50:
		return BucketExcellent
	case dBm >= -60:
		return BucketGood
	case dBm >= -70:
		return BucketFair
	case dBm >= -80:
		return BucketPoor
	default:
		return BucketVeryPoor
	}
}

// LatencyBucket grades round-trip time: < 20 excellent, < 50 good,
// < 100 fair, else poor
func LatencyBucket(ms int) Bucket {
	switch {
	case ms < 20:
		return BucketExcellent
	case ms < 50:
		return BucketGood
	case ms < 100:
		return BucketFair
	default:
		return BucketPoor
	}
}

// BandwidthBucket grades link speed: >= 500 excellent, >= 100 good,
// >= 50 fair, else poor
func BandwidthBucket(mbps int) Bucket {
	switch {
	case mbps >= 500:
		return BucketExcellent
	case mbps >= 100:
		return BucketGood
	case mbps >= 50:
		return BucketFair
	default:
		return BucketPoor
	}
}

// BandFromFrequency maps a channel frequency in MHz to its band
func BandFromFrequency(mhz int) string {
	if mhz > 4000 {
		return Band5GHz
	}
	return Band24GHz
}

// ParseBucket accepts any case and surrounding whitespace
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BucketExcellent, BucketGood, BucketFair, BucketPoor, BucketVeryPoor:
		return b, true
	}
	return "", false
}

// ClassifiedMeasurement carries both the bucket and the raw value of each
// input, in the shape sent to an explainer service
type ClassifiedMeasurement struct {
	Location       string `json:"location"`
	Activity       string `json:"activity"`
	SignalStrength Bucket `json:"signal_strength"`
	SignalDBm      int    `json:"signal_dbm"`
	Latency        Bucket `json:"latency"`
	LatencyMs      int    `json:"latency_ms"`
	Bandwidth      Bucket `json:"bandwidth"`
	LinkSpeedMbps  int    `json:"link_speed_mbps"`
	Frequency      string `json:"frequency"`
}

// Classify buckets raw link readings
func Classify(location, activity string, dBm, latencyMs, linkSpeedMbps, frequencyMHz int) ClassifiedMeasurement {
	return ClassifiedMeasurement{
		Location:       location,
		Activity:       activity,
		SignalStrength: SignalBucket(dBm),
		SignalDBm:      dBm,
		Latency:        LatencyBucket(latencyMs),
		LatencyMs:      latencyMs,
		Bandwidth:      BandwidthBucket(linkSpeedMbps),
		LinkSpeedMbps:  linkSpeedMbps,
		Frequency:      BandFromFrequency(frequencyMHz),
	}
}

// Input returns the rule-chain input for this measurement
func (c ClassifiedMeasurement) Input() Input {
	return Input{
		Signal:    c.SignalStrength,
		Latency:   c.Latency,
		Bandwidth: c.Bandwidth,
		Band:      c.Frequency,
		Activity:  c.Activity,
	}
}
