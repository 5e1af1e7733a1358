package transcript

import (
	"iter"

	"github.com/tubetext/tubetext-server/internal/speech"
	"github.com/tubetext/tubetext-server/internal/youtube"
)

// TimedSnippet is a piece of text with its start offset in seconds.
type TimedSnippet interface {
	Offset() float64
	Content() string
}

type captionSnippet youtube.Snippet

func (s captionSnippet) Offset() float64 { return s.Start }
func (s captionSnippet) Content() string { return s.Text }

type utteranceSnippet speech.Utterance

func (u utteranceSnippet) Offset() float64 { return u.Start }
func (u utteranceSnippet) Content() string { return u.Transcript }

// CaptionSnippets yields caption lines in their original order.
func CaptionSnippets(snippets []youtube.Snippet) iter.Seq[TimedSnippet] {
	return func(yield func(TimedSnippet) bool) {
		for _, s := range snippets {
			if !yield(captionSnippet(s)) {
				return
			}
		}
	}
}

// UtteranceSnippets yields speech utterances in their original order.
func UtteranceSnippets(utterances []speech.Utterance) iter.Seq[TimedSnippet] {
	return func(yield func(TimedSnippet) bool) {
		for _, u := range utterances {
			if !yield(utteranceSnippet(u)) {
				return
			}
		}
	}
}
