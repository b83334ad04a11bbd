package artifact

import "fmt"

// Bucket is a logical artifact namespace
type Bucket string

const (
	// BucketAudio holds transcripts, translated text and every audio artifact
	BucketAudio Bucket = "audio-artifacts"
	// BucketMerged holds silent and final merged videos
	BucketMerged Bucket = "merged-artifacts"
	// BucketUploads holds source videos; it is never served over HTTP
	BucketUploads Bucket = "uploads"
)

// Buckets lists every bucket a store backend must provision
func Buckets() []Bucket {
	return []Bucket{BucketAudio, BucketMerged, BucketUploads}
}

// Valid reports whether b is a known bucket
func (b Bucket) Valid() bool {
	switch b {
	case BucketAudio, BucketMerged, BucketUploads:
		return true
	default:
		return false
	}
}

// ParseBucket converts a string into a known bucket
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(s)
	if !b.Valid() {
		return "", fmt.Errorf("unknown bucket %q", s)
	}
	return b, nil
}

// Ref points at one artifact inside the store
type Ref struct {
	Bucket Bucket `json:"bucket"`
	Name   string `json:"name"`
}

// IsZero reports whether the ref is empty
func (r Ref) IsZero() bool {
	return r.Bucket == "" && r.Name == ""
}

func (r Ref) String() string {
	return string(r.Bucket) + "/" + r.Name
}
