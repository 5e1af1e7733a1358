package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/tubetext/tubetext-server/internal/audio"
	"github.com/tubetext/tubetext-server/internal/logging"
	"github.com/tubetext/tubetext-server/internal/speech"
	"github.com/tubetext/tubetext-server/internal/youtube"
)

const DefaultLanguage = "en"

type Source string

const (
	SourceCaptions           Source = "captions"
	SourceAudioTranscription Source = "audio_transcription"
)

// Mode selects which acquisition paths a request may use.
type Mode int

const (
	// ModeCaptionsOnly never touches the audio path.
	ModeCaptionsOnly Mode = iota
	// ModeAudioFallback extracts and transcribes audio when the video has no
	// captions in the requested language.
	ModeAudioFallback
)

type Request struct {
	VideoURL string
	Language string
}

// Result is the transcript returned to clients. A failed result carries
// only Success and Error.
type Result struct {
	Success         bool      `json:"success"`
	VideoID         string    `json:"video_id,omitempty"`
	Source          Source    `json:"source,omitempty"`
	Language        string    `json:"language,omitempty"`
	Title           string    `json:"title,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	Segments        []Segment `json:"segments"`
	WordCount       int       `json:"word_count"`
	Error           string    `json:"error,omitempty"`

	// Err is the underlying failure, kept for logging.
	Err error `json:"-"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{false, r.Error})
	}
	type plain Result
	p := plain(*r)
	if p.Segments == nil {
		p.Segments = []Segment{}
	}
	return json.Marshal(p)
}

func failure(err error) *Result {
	return &Result{Success: false, Error: Describe(err), Err: err}
}

// CaptionFetcher downloads caption snippets for a video.
type CaptionFetcher interface {
	Fetch(ctx context.Context, videoID string, languages []string) ([]youtube.Snippet, error)
}

// MetadataLookup returns descriptive details of a video.
type MetadataLookup interface {
	Lookup(ctx context.Context, videoID string) (*youtube.Metadata, error)
}

type PipelineConfig struct {
	Captions    CaptionFetcher
	Metadata    MetadataLookup     // optional
	Downloader  audio.Downloader   // nil disables the audio path
	Transcriber speech.Transcriber // nil disables the audio path

	TempDir         string
	AudioLanguage   string
	SegmentDuration float64
	Logger          *slog.Logger
}

// Pipeline resolves a video URL into a transcript.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.AudioLanguage == "" {
		cfg.AudioLanguage = speech.DefaultLanguage
	}
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultSegmentDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{cfg: cfg, logger: logging.WithComponent(logger, "transcript")}
}

// AudioEnabled reports whether the audio fallback path is configured.
func (p *Pipeline) AudioEnabled() bool {
	return p.cfg.Downloader != nil && p.cfg.Transcriber != nil
}

// Run acquires the transcript for req. Failures are reported in the result,
// never as a Go error.
func (p *Pipeline) Run(ctx context.Context, req Request, mode Mode) *Result {
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}

	videoID, ok := youtube.ExtractVideoID(req.VideoURL)
	if !ok {
		return failure(ErrIdentifierNotFound)
	}
	logger := logging.WithVideoID(p.logger, videoID)

	res, err := p.fromCaptions(ctx, videoID, language)
	if errors.Is(err, ErrCaptionsUnavailable) && mode == ModeAudioFallback {
		logger.Info("no captions in requested language, falling back to audio", "language", language)
		res, err = p.fromAudio(ctx, videoID)
	}
	if err != nil {
		logger.Warn("transcript acquisition failed", "error", err, "mode", mode)
		return failure(err)
	}

	if res.Source == SourceCaptions {
		p.enrich(ctx, logger, res)
	}

	logger.Info("transcript ready",
		"source", res.Source,
		"segments", len(res.Segments),
		"words", res.WordCount,
	)
	return res
}

func (p *Pipeline) fromCaptions(ctx context.Context, videoID, language string) (*Result, error) {
	snippets, err := p.cfg.Captions.Fetch(ctx, videoID, []string{language})
	if errors.Is(err, youtube.ErrNoTranscript) {
		return nil, ErrCaptionsUnavailable
	}
	if err != nil {
		return nil, &TransportError{Service: "captions", Err: err}
	}

	texts := make([]string, len(snippets))
	for i, s := range snippets {
		texts[i] = s.Text
	}

	return &Result{
		Success:   true,
		VideoID:   videoID,
		Source:    SourceCaptions,
		Language:  language,
		Segments:  Merge(CaptionSnippets(snippets), p.cfg.SegmentDuration),
		WordCount: WordCount(texts...),
	}, nil
}

func (p *Pipeline) fromAudio(ctx context.Context, videoID string) (*Result, error) {
	if !p.AudioEnabled() {
		return nil, ErrConfiguration
	}

	var res *Result
	err := audio.WithTempDir(p.cfg.TempDir, "tubetext-"+videoID+"-", func(dir string) error {
		dl, err := p.cfg.Downloader.Download(ctx, youtube.WatchURL(videoID), videoID, dir)
		if err != nil {
			return &TransportError{Service: "download", Err: err}
		}

		data, err := os.ReadFile(dl.Path)
		if err != nil {
			return &TransportError{Service: "download", Err: fmt.Errorf("read audio: %w", err)}
		}

		tr, err := p.cfg.Transcriber.Transcribe(ctx, data, speech.Options{Language: p.cfg.AudioLanguage})
		if err != nil {
			return &TransportError{Service: "transcription", Err: err}
		}

		duration := dl.Duration
		if duration == 0 {
			duration = tr.Duration
		}

		res = &Result{
			Success:         true,
			VideoID:         videoID,
			Source:          SourceAudioTranscription,
			Language:        p.cfg.AudioLanguage,
			Title:           dl.Title,
			DurationSeconds: int(math.Round(duration)),
			Segments:        Merge(UtteranceSnippets(tr.Utterances), p.cfg.SegmentDuration),
			WordCount:       WordCount(tr.Transcript),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// enrich adds title and duration from the metadata service. Lookup failures
// only cost the extra fields.
func (p *Pipeline) enrich(ctx context.Context, logger *slog.Logger, res *Result) {
	if p.cfg.Metadata == nil {
		return
	}
	md, err := p.cfg.Metadata.Lookup(ctx, res.VideoID)
	if err != nil {
		logger.Debug("metadata lookup failed", "error", err)
		return
	}
	res.Title = md.Title
	res.DurationSeconds = md.DurationSeconds
}
