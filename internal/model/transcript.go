package model

import (
	"math"
	"sort"
	"strings"
)

// Segment is a timestamped span of spoken text in one language track
type Segment struct {
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
	Text  string  `json:"text"`
}

// Transcript holds both language tracks of a video
type Transcript struct {
	English  []Segment `json:"transcript_en"`
	Chinese  []Segment `json:"transcript_cn"`
	Duration int       `json:"duration"` // seconds
}

// Audio is an uploaded audio payload
type Audio struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NormalizeSegments trims text, drops empty or zero-length segments and orders by start time.
// Every returned segment satisfies Start < End.
func NormalizeSegments(segments []Segment) []Segment {
	result := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.Start < 0 || seg.Start >= seg.End {
			continue
		}
		result = append(result, Segment{Start: seg.Start, End: seg.End, Text: text})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start < result[j].Start
	})
	return result
}

// SegmentsDuration returns the end of the latest segment rounded to whole seconds
func SegmentsDuration(segments []Segment) int {
	var end float64
	for _, seg := range segments {
		if seg.End > end {
			end = seg.End
		}
	}
	return int(math.Round(end))
}
