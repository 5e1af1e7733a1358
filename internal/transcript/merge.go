// Package transcript turns a video URL into a normalized transcript. It picks
// the acquisition path, runs it, and merges the resulting timed snippets into
// fixed-width segments.
package transcript

import (
	"fmt"
	"iter"
	"strings"
)

// DefaultSegmentDuration is the target width of a merged segment in seconds.
const DefaultSegmentDuration = 30.0

// Segment is a run of consecutive snippets.
type Segment struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// Merge groups snippets into segments. A segment closes when the next
// snippet starts at least threshold seconds after the segment's first
// snippet; that snippet opens the following segment. Input order is kept.
// A threshold <= 0 uses DefaultSegmentDuration.
func Merge(snippets iter.Seq[TimedSnippet], threshold float64) []Segment {
	if threshold <= 0 {
		threshold = DefaultSegmentDuration
	}

	segments := []Segment{}
	var texts []string
	var segmentStart float64

	flush := func() {
		if len(texts) == 0 {
			return
		}
		segments = append(segments, Segment{
			Timestamp: FormatTimestamp(segmentStart),
			Text:      strings.Join(texts, " "),
		})
		texts = texts[:0]
	}

	for s := range snippets {
		if len(texts) > 0 && s.Offset()-segmentStart >= threshold {
			flush()
		}
		if len(texts) == 0 {
			segmentStart = s.Offset()
		}
		texts = append(texts, s.Content())
	}
	flush()

	return segments
}

// FormatTimestamp renders seconds as (MM:SS). Minutes are not wrapped into
// hours.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("(%02d:%02d)", total/60, total%60)
}

// WordCount counts whitespace-separated words across texts.
func WordCount(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(strings.Fields(t))
	}
	return n
}
