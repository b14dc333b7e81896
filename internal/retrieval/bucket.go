package retrieval

import "time"

// TemporalBucket is one tier of the hierarchical index's exponentially
// sized time windows.
type TemporalBucket string

const (
	BucketLast24h TemporalBucket = "last_24h"
	BucketLast7d  TemporalBucket = "last_7d"
	BucketLast30d TemporalBucket = "last_30d"
	BucketLast90d TemporalBucket = "last_90d"
	BucketOlder   TemporalBucket = "older"
)

// allBuckets is the fixed bucket ordering, newest first.
var allBuckets = []TemporalBucket{BucketLast24h, BucketLast7d, BucketLast30d, BucketLast90d, BucketOlder}

// bucketFor classifies startTime into a TemporalBucket relative to now.
func bucketFor(now, startTime time.Time) TemporalBucket {
	age := now.Sub(startTime)
	switch {
	case age <= 24*time.Hour:
		return BucketLast24h
	case age <= 7*24*time.Hour:
		return BucketLast7d
	case age <= 30*24*time.Hour:
		return BucketLast30d
	case age <= 90*24*time.Hour:
		return BucketLast90d
	default:
		return BucketOlder
	}
}

// bucketRecencyWeight gives each bucket a fixed recency score in (0,1],
// newest highest. Used as a coarse, O(1) stand-in for a continuous decay
// function when scoring candidates.
var bucketRecencyWeight = map[TemporalBucket]float64{
	BucketLast24h: 1.0,
	BucketLast7d:  0.7,
	BucketLast30d: 0.4,
	BucketLast90d: 0.2,
	BucketOlder:   0.05,
}

func recencyScore(now, startTime time.Time) float64 {
	return bucketRecencyWeight[bucketFor(now, startTime)]
}
