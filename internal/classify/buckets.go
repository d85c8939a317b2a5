// Package classify assigns follow-up buckets to ledger entries.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownBucket is returned for bucket names outside the known set
var ErrUnknownBucket = errors.New("unknown bucket")

// Bucket is one follow-up category. An entry may sit in several.
type Bucket string

const (
	BucketUnsolved             Bucket = "unsolved"
	BucketMissingJustification Bucket = "missing_justification"
	BucketSuspicious           Bucket = "suspicious"
)

var allBuckets = []Bucket{BucketUnsolved, BucketMissingJustification, BucketSuspicious}

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	for _, b := range allBuckets {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBucket, s)
}

// Buckets is the set of buckets of one entry. The zero value is clean.
type Buckets uint8

func bit(b Bucket) Buckets {
	switch b {
	case BucketUnsolved:
		return 1 << 0
	case BucketMissingJustification:
		return 1 << 1
	case BucketSuspicious:
		return 1 << 2
	}
	return 0
}

// With returns the set extended by b.
func (s Buckets) With(b Bucket) Buckets {
	return s | bit(b)
}

// Has reports membership.
func (s Buckets) Has(b Bucket) bool {
	return bit(b) != 0 && s&bit(b) != 0
}

// IsClean reports whether no bucket applies.
func (s Buckets) IsClean() bool {
	return s == 0
}

// List returns the members in a fixed order.
func (s Buckets) List() []Bucket {
	out := make([]Bucket, 0, len(allBuckets))
	for _, b := range allBuckets {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

func (s Buckets) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// Status is the label shown next to an entry.
type Status string

const (
	StatusError   Status = "error"
	StatusWarning Status = "warning"
	StatusSuccess Status = "success"
)

// StatusOf ranks the buckets: unsolved or missing justification is an error,
// suspicious or an open request is a warning, anything else is success.
func StatusOf(b Buckets, hasOpenRequest bool) Status {
	switch {
	case b.Has(BucketUnsolved), b.Has(BucketMissingJustification):
		return StatusError
	case b.Has(BucketSuspicious), hasOpenRequest:
		return StatusWarning
	}
	return StatusSuccess
}
