package models

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Bucket is a time-to-deadline band. The zero value is BucketUnknown, so an
// unclassified order is distinguishable from a classified one.
type Bucket int

const (
	BucketUnknown Bucket = iota
	BucketOverdue
	BucketWithin2h
	BucketWithin4h
	BucketWithin6h
	BucketWithin12h
	BucketWithin24h
	BucketAmple
)

// Buckets lists every classification band from tightest to loosest.
var Buckets = []Bucket{
	BucketOverdue,
	BucketWithin2h,
	BucketWithin4h,
	BucketWithin6h,
	BucketWithin12h,
	BucketWithin24h,
	BucketAmple,
}

var bucketKeys = map[Bucket]string{
	BucketUnknown:   "unknown",
	BucketOverdue:   "overdue",
	BucketWithin2h:  "within_2h",
	BucketWithin4h:  "within_4h",
	BucketWithin6h:  "within_6h",
	BucketWithin12h: "within_12h",
	BucketWithin24h: "within_24h",
	BucketAmple:     "ample",
}

var bucketLabels = map[Bucket]string{
	BucketUnknown:   "Bilinmiyor",
	BucketOverdue:   "Gecikmede",
	BucketWithin2h:  "2 Saat İçinde",
	BucketWithin4h:  "4 Saat İçinde",
	BucketWithin6h:  "6 Saat İçinde",
	BucketWithin12h: "12 Saat İçinde",
	BucketWithin24h: "24 Saat İçinde",
	BucketAmple:     "Süresi Var",
}

// String returns the stable machine key used in URLs, metrics and JSON.
func (b Bucket) String() string {
	if k, ok := bucketKeys[b]; ok {
		return k
	}
	return bucketKeys[BucketUnknown]
}

// Label returns the operator-facing label.
func (b Bucket) Label() string {
	if l, ok := bucketLabels[b]; ok {
		return l
	}
	return bucketLabels[BucketUnknown]
}

// ParseBucket accepts the machine key of a bucket.
func ParseBucket(s string) (Bucket, error) {
	for b, k := range bucketKeys {
		if k == s && b != BucketUnknown {
			return b, nil
		}
	}
	return BucketUnknown, errors.Errorf("unknown bucket %q", s)
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Bucket) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "bucket")
	}
	if s == bucketKeys[BucketUnknown] {
		*b = BucketUnknown
		return nil
	}
	parsed, err := ParseBucket(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Delay is the classification of one order against a reference time.
type Delay struct {
	Bucket Bucket `json:"bucket"`
	// Remaining is deadline minus reference time; negative when overdue.
	Remaining time.Duration `json:"remaining"`
	// Detail is the elapsed (overdue) or remaining time in operator wording,
	// e.g. "2 Gün 0 Saat 0 Dakika" or "1 Saat 30 Dakika".
	Detail string `json:"detail"`
}

// Display is the full operator text, e.g. "Gecikmede (2 Gün 0 Saat 0 Dakika)".
func (d Delay) Display() string {
	if d.Detail == "" {
		return d.Bucket.Label()
	}
	return d.Bucket.Label() + " (" + d.Detail + ")"
}
