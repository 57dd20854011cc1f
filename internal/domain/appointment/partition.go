package appointment

import (
	"fmt"
	"strings"
	"time"
)

// Buckets splits a list by whether the meeting time has passed.
type Buckets struct {
	Actionable []*Appointment `json:"actionable"`
	Expired    []*Appointment `json:"expired"`
}

// Partition places open appointments still in the future of asOf in
// Actionable and every appointment at or before asOf in Expired. Terminal
// appointments in the future belong to neither bucket. An instant that cannot
// be parsed counts as expired. Input order is preserved within each bucket.
func Partition(appts []*Appointment, asOf time.Time, loc *time.Location) Buckets {
	b := Buckets{Actionable: []*Appointment{}, Expired: []*Appointment{}}
	for _, a := range appts {
		t, err := a.Instant(loc)
		switch {
		case err != nil || !t.After(asOf):
			b.Expired = append(b.Expired, a)
		case a.Status.Open():
			b.Actionable = append(b.Actionable, a)
		}
	}
	return b
}

// Bucket names a view over a partitioned list.
type Bucket string

const (
	BucketNone       Bucket = ""
	BucketActionable Bucket = "actionable"
	BucketExpired    Bucket = "expired"
	BucketAll        Bucket = "all"
)

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case BucketNone, BucketActionable, BucketExpired, BucketAll:
		return b, nil
	}
	return "", &ValidationError{Field: "bucket", Message: fmt.Sprintf("unknown bucket %q", s)}
}

// Select returns the bucket named by which. BucketNone and BucketAll have no
// single list and yield nil.
func (b Buckets) Select(which Bucket) []*Appointment {
	switch which {
	case BucketActionable:
		return b.Actionable
	case BucketExpired:
		return b.Expired
	}
	return nil
}
