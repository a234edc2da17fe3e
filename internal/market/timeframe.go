package market

import "time"

// Timeframe identifies one of the cascaded candle resolutions.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// Timeframes lists every resolution the pipeline maintains, coarsest last.
var Timeframes = []Timeframe{TF1s, TF1m, TF5m}

// Seconds returns the bucket width in seconds.
func (tf Timeframe) Seconds() int64 {
	switch tf {
	case TF1m:
		return 60
	case TF5m:
		return 300
	default:
		return 1
	}
}

// Width returns the bucket width as a duration.
func (tf Timeframe) Width() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// BucketOf aligns an epoch-seconds timestamp down to the start of its
// bucket. Bucket membership comes from the record's own event time, never
// from wall-clock arrival time.
func (tf Timeframe) BucketOf(epochSeconds float64) int64 {
	w := tf.Seconds()
	return int64(epochSeconds) / w * w
}

// ParseTimeframe maps a query string to a known timeframe, defaulting to 1m.
func ParseTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case TF1s, TF1m, TF5m:
		return Timeframe(s)
	default:
		return TF1m
	}
}
