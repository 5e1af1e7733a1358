package transcript

import (
	"context"
	"errors"
	"fmt"

	"github.com/tubetext/tubetext-server/internal/audio"
)

var (
	ErrIdentifierNotFound  = errors.New("could not extract a video id from the URL")
	ErrCaptionsUnavailable = errors.New("no captions available for this video")
	ErrConfiguration       = errors.New("audio transcription is not configured")
)

// TransportError is a failure talking to an external service or tool.
type TransportError struct {
	Service string // captions, download, transcription
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Describe returns the message shown to users for an acquisition error.
func Describe(err error) string {
	var transport *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIdentifierNotFound):
		return "Could not extract video ID from URL"
	case errors.Is(err, ErrCaptionsUnavailable):
		return "No captions available for this video"
	case errors.Is(err, ErrConfiguration):
		return "Audio transcription is not available right now"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out while processing this video"
	case errors.As(err, &transport):
		return describeTransport(transport)
	default:
		return "Failed to process this video"
	}
}

func describeTransport(e *TransportError) string {
	switch e.Service {
	case "captions":
		return "Could not fetch captions for this video"
	case "download":
		var toolErr *audio.ToolError
		if errors.As(e.Err, &toolErr) {
			return "Could not download audio for this video"
		}
		return "Could not prepare audio for this video"
	case "transcription":
		return "Speech transcription failed"
	default:
		return "Failed to process this video"
	}
}
