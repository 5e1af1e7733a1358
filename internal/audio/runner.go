package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tubetext/tubetext-server/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxStdoutBytes = 4 * 1024 * 1024
)

// Downloader extracts the audio track of a video into dir.
type Downloader interface {
	Download(ctx context.Context, sourceURL, videoID, dir string) (*Download, error)
}

type Config struct {
	YTDLPPath       string        // empty = "yt-dlp" on PATH
	FFmpegPath      string        // empty = "ffmpeg" on PATH
	DownloadTimeout time.Duration // timeout for a single extraction
	ProbeTimeout    time.Duration // timeout for version probes
	Logger          *slog.Logger
}

func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		YTDLPPath:       "yt-dlp",
		FFmpegPath:      "ffmpeg",
		DownloadTimeout: 10 * time.Minute,
		ProbeTimeout:    15 * time.Second,
		Logger:          logger,
	}
}

// Runner drives yt-dlp and ffmpeg as subprocesses.
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	if cfg.YTDLPPath == "" {
		cfg.YTDLPPath = "yt-dlp"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	cfg.Logger = logging.WithComponent(cfg.Logger, "audio")
	return &Runner{cfg: cfg}
}

// infoJSON is the subset of yt-dlp's --dump-json output we read.
type infoJSON struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Download extracts the best audio stream of sourceURL as a 192 kbps MP3
// named <videoID>.mp3 inside dir.
func (r *Runner) Download(ctx context.Context, sourceURL, videoID, dir string) (*Download, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	outTemplate := filepath.Join(dir, videoID+".%(ext)s")
	result := r.exec(ctx, r.cfg.YTDLPPath,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--no-playlist",
		"--no-progress",
		"-j", "--no-simulate",
		"-o", outTemplate,
		sourceURL,
	)
	if !result.IsSuccess() {
		err := ctx.Err()
		return nil, &ToolError{Tool: "yt-dlp", ExitCode: result.ExitCode, StderrTail: result.StderrTail, Err: err}
	}

	path, err := findOutput(dir, videoID)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat audio file: %w", err)
	}

	dl := &Download{Path: path, SizeBytes: st.Size()}
	if info, ok := parseInfo(result.Stdout); ok {
		dl.Title = info.Title
		dl.Duration = info.Duration
	}

	r.cfg.Logger.Info("audio extracted",
		"video_id", videoID,
		"bytes", dl.SizeBytes,
		"duration_s", dl.Duration,
		"elapsed_ms", result.Duration.Milliseconds(),
	)
	return dl, nil
}

// RunDoctor probes the installed yt-dlp and ffmpeg versions. Missing tools
// are reported in the capabilities, not as an error.
func (r *Runner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	caps := &Capabilities{
		YTDLP:    r.probe(ctx, r.cfg.YTDLPPath, "--version"),
		FFmpeg:   r.probe(ctx, r.cfg.FFmpegPath, "-version"),
		ProbedAt: time.Now(),
	}

	r.cfg.Logger.Info("doctor probe complete",
		"yt_dlp", caps.YTDLP.Available,
		"ffmpeg", caps.FFmpeg.Available,
	)
	return caps, nil
}

func (r *Runner) probe(ctx context.Context, binary string, args ...string) ToolInfo {
	if _, err := exec.LookPath(binary); err != nil {
		return ToolInfo{Error: err.Error()}
	}
	result := r.exec(ctx, binary, args...)
	if !result.IsSuccess() {
		return ToolInfo{Error: fmt.Sprintf("exit %d: %s", result.ExitCode, truncate(result.StderrTail, 200))}
	}
	return ToolInfo{Available: true, Version: firstLine(result.Stdout)}
}

// exec is the core subprocess execution helper.
func (r *Runner) exec(ctx context.Context, binary string, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, binary, args...)

	var stderrBuf, stdoutBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = &headWriter{w: &stdoutBuf, limit: maxStdoutBytes}

	r.cfg.Logger.Debug("executing command", "binary", filepath.Base(binary), "args", len(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(err.Error())
			}
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("command failed",
			"binary", filepath.Base(binary),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		Stdout:     stdoutBuf.Bytes(),
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

// findOutput locates the extracted file, preferring the mp3 the
// post-processor produces.
func findOutput(dir, videoID string) (string, error) {
	mp3 := filepath.Join(dir, videoID+".mp3")
	if _, err := os.Stat(mp3); err == nil {
		return mp3, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, videoID+".*"))
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") && !strings.HasSuffix(m, ".json") {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("yt-dlp produced no audio file")
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

// parseInfo reads the last JSON object line yt-dlp printed.
func parseInfo(stdout []byte) (infoJSON, bool) {
	var info infoJSON
	found := false
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 64*1024), maxStdoutBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var candidate infoJSON
		if err := json.Unmarshal(line, &candidate); err == nil {
			info = candidate
			found = true
		}
	}
	return info, found
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}

// headWriter keeps the first `limit` bytes and discards the rest.
type headWriter struct {
	w     *bytes.Buffer
	limit int
}

func (hw *headWriter) Write(p []byte) (int, error) {
	n := len(p)
	if room := hw.limit - hw.w.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		hw.w.Write(p)
	}
	return n, nil
}

var _ Downloader = (*Runner)(nil)
