package media

import (
	"fmt"
	"strings"
	"time"
)

// MergePolicy decides how the merged output length relates to its inputs
type MergePolicy string

const (
	// MergeShortest truncates the output to the shorter of video and audio
	MergeShortest MergePolicy = "shortest"
	// MergePad pads the audio with silence so the output matches the video
	MergePad MergePolicy = "pad"
	// MergeLongest keeps both streams whole; the last frame holds if audio is longer
	MergeLongest MergePolicy = "longest"
)

// DefaultMergePolicy stops the output at the shorter of the two inputs
const DefaultMergePolicy = MergeShortest

// ParseMergePolicy parses a policy name, defaulting to DefaultMergePolicy when empty
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch p := MergePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultMergePolicy, nil
	case MergeShortest, MergePad, MergeLongest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q (use shortest, pad or longest)", s)
	}
}

// ExpectedDuration returns the merged output duration for the given inputs
func (p MergePolicy) ExpectedDuration(video, audio time.Duration) time.Duration {
	switch p {
	case MergePad:
		return video
	case MergeLongest:
		if audio > video {
			return audio
		}
		return video
	default:
		if audio < video {
			return audio
		}
		return video
	}
}

// TruncatesAudio reports whether audio of the given length loses content under this policy
func (p MergePolicy) TruncatesAudio(video, audio time.Duration) bool {
	return p != MergeLongest && audio > video
}
