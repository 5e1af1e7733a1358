package api

import (
	"time"

	"github.com/tubetext/tubetext-server/internal/audio"
	"github.com/tubetext/tubetext-server/internal/transcript"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Version  string         `json:"version"`
	UptimeS  int64          `json:"uptime_s"`
	Features FeaturesStatus `json:"features"`
	Database string         `json:"database,omitempty"`
	Tools    *ToolsStatus   `json:"tools,omitempty"`
}

type FeaturesStatus struct {
	Captions      bool `json:"captions"`
	AudioFallback bool `json:"audio_fallback"`
	Summary       bool `json:"summary"`
	Translation   bool `json:"translation"`
}

type ToolsStatus struct {
	YTDLP       audio.ToolInfo `json:"yt_dlp"`
	FFmpeg      audio.ToolInfo `json:"ffmpeg"`
	LastProbeAt string         `json:"last_probe_at"`
}

// VideoRequest is accepted from the query string (video_url, language) or
// from a JSON body.
type VideoRequest struct {
	VideoURL string `json:"video_url" validate:"required,max=2048"`
	Language string `json:"language" validate:"omitempty,min=2,max=35"`
}

func (v VideoRequest) toTranscriptRequest() transcript.Request {
	return transcript.Request{VideoURL: v.VideoURL, Language: v.Language}
}

type SummaryRequest struct {
	Transcription string `json:"transcription" validate:"required,max=500000"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type SegmentInput struct {
	Timestamp string `json:"timestamp" validate:"max=32"`
	Text      string `json:"text" validate:"max=20000"`
}

type TranslateRequest struct {
	Segments []SegmentInput `json:"segments" validate:"max=5000,dive"`
	Language string         `json:"language" validate:"required,max=64"`
}

func (t TranslateRequest) segments() []transcript.Segment {
	out := make([]transcript.Segment, len(t.Segments))
	for i, s := range t.Segments {
		out[i] = transcript.Segment{Timestamp: s.Timestamp, Text: s.Text}
	}
	return out
}

func toolsStatus(caps *audio.Capabilities) *ToolsStatus {
	if caps == nil {
		return nil
	}
	return &ToolsStatus{
		YTDLP:       caps.YTDLP,
		FFmpeg:      caps.FFmpeg,
		LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
	}
}
