package update

import (
	"math/rand/v2"
	"time"
)

// Bucket is an elapsed-time range since the last committed photo, used to
// pick a freshness-confidence word for the page.
type Bucket int

const (
	BucketUnknown Bucket = iota // nothing committed yet
	BucketFresh                 // under 4h
	BucketToday                 // 4-24h
	BucketYesterday             // 24-48h
	BucketTwoDays               // 48-72h
	BucketStale                 // 72h and beyond
)

func (b Bucket) String() string {
	switch b {
	case BucketFresh:
		return "fresh"
	case BucketToday:
		return "today"
	case BucketYesterday:
		return "yesterday"
	case BucketTwoDays:
		return "two-days"
	case BucketStale:
		return "stale"
	default:
		return "unknown"
	}
}

var bucketWords = map[Bucket][]string{
	BucketFresh:     {"definitely", "certainly", "absolutely"},
	BucketToday:     {"probably", "very likely", "surely"},
	BucketYesterday: {"presumably", "likely", "apparently"},
	BucketTwoDays:   {"possibly", "perhaps", "maybe"},
	BucketStale:     {"hopefully", "conceivably", "worryingly"},
}

func bucketFor(elapsed time.Duration) Bucket {
	switch {
	case elapsed < 4*time.Hour:
		return BucketFresh
	case elapsed < 24*time.Hour:
		return BucketToday
	case elapsed < 48*time.Hour:
		return BucketYesterday
	case elapsed < 72*time.Hour:
		return BucketTwoDays
	default:
		return BucketStale
	}
}

// wordFor draws one candidate word for the bucket. Callers cache the result
// until the bucket changes so repeated page loads stay stable.
func wordFor(b Bucket) string {
	words := bucketWords[b]
	if len(words) == 0 {
		return ""
	}
	return words[rand.IntN(len(words))]
}
