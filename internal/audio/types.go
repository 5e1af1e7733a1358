// Package audio extracts audio tracks from videos with yt-dlp and probes the
// external tools the extraction depends on.
package audio

import (
	"fmt"
	"time"
)

// Download describes an extracted audio file.
type Download struct {
	Path      string
	Title     string
	Duration  float64 // seconds, 0 when unknown
	SizeBytes int64
}

// Capabilities reports which external tools are installed.
type Capabilities struct {
	YTDLP  ToolInfo `json:"yt_dlp"`
	FFmpeg ToolInfo `json:"ffmpeg"`

	ProbedAt time.Time `json:"probed_at"`
}

// CanExtract is true when both yt-dlp and ffmpeg are usable.
func (c *Capabilities) CanExtract() bool {
	return c.YTDLP.Available && c.FFmpeg.Available
}

type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunResult is the structured outcome of a tool subprocess.
type RunResult struct {
	ExitCode   int
	Stdout     []byte
	StderrTail string
	Duration   time.Duration
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ToolError reports a tool that exited unsuccessfully.
type ToolError struct {
	Tool       string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *ToolError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("%s exited %d: %s", e.Tool, e.ExitCode, truncate(e.StderrTail, 512))
	}
	return fmt.Sprintf("%s exited %d", e.Tool, e.ExitCode)
}

func (e *ToolError) Unwrap() error { return e.Err }
