// Package translate translates a transcript chunk by chunk and reports each
// chunk as soon as it is ready.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tubetext/tubetext-server/internal/logging"
	"github.com/tubetext/tubetext-server/internal/retry"
	"github.com/tubetext/tubetext-server/internal/transcript"
)

const (
	DefaultChunkSize   = 1
	DefaultMaxAttempts = 3
)

// Translator translates one piece of text.
type Translator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// Event is one message on the translation stream. Exactly one of the three
// shapes is set: a translated chunk, the final done marker, or an error that
// ends the stream.
type Event struct {
	Translation *string `json:"translation,omitempty"`
	Done        bool    `json:"done,omitempty"`
	Error       string  `json:"error,omitempty"`
	Chunk       *int    `json:"chunk,omitempty"`
}

func TranslationEvent(text string) Event { return Event{Translation: &text} }

func DoneEvent() Event { return Event{Done: true} }

func ErrorEvent(chunk int, msg string) Event { return Event{Error: msg, Chunk: &chunk} }

// ChunkError reports a chunk that could not be translated.
type ChunkError struct {
	Chunk int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("translate chunk %d: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

type Config struct {
	ChunkSize   int
	MaxAttempts int
	Backoff     time.Duration // initial wait between attempts
	Logger      *slog.Logger
}

type Pipeline struct {
	translator Translator
	cfg        Config
	logger     *slog.Logger
}

func NewPipeline(translator Translator, cfg Config) *Pipeline {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{translator: translator, cfg: cfg, logger: logging.WithComponent(logger, "translate")}
}

// Chunks groups segment texts into space-joined chunks of chunkSize
// segments, in input order.
func Chunks(segments []transcript.Segment, chunkSize int) []string {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	chunks := make([]string, 0, (len(segments)+chunkSize-1)/chunkSize)
	for i := 0; i < len(segments); i += chunkSize {
		end := min(i+chunkSize, len(segments))
		texts := make([]string, 0, end-i)
		for _, seg := range segments[i:end] {
			texts = append(texts, seg.Text)
		}
		chunks = append(chunks, strings.Join(texts, " "))
	}
	return chunks
}

// Stream translates segments into language one chunk at a time and passes
// each result to emit in input order, followed by a single done event. A
// chunk that still fails after MaxAttempts produces an error event and ends
// the stream without done. An emit error or a cancelled ctx stops the
// stream immediately.
func (p *Pipeline) Stream(ctx context.Context, segments []transcript.Segment, language string, emit func(Event) error) error {
	chunks := Chunks(segments, p.cfg.ChunkSize)
	rc := retry.Config{
		MaxRetries:  p.cfg.MaxAttempts - 1,
		InitialWait: p.cfg.Backoff,
		MaxWait:     10 * p.cfg.Backoff,
		Multiplier:  2,
		Retryable:   isRetryable,
	}

	for i, chunk := range chunks {
		translated, err := retry.Do(ctx, rc, func() (string, error) {
			return p.translator.Translate(ctx, chunk, language)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("chunk translation failed", "chunk", i, "chunks", len(chunks), "error", err)
			if emitErr := emit(ErrorEvent(i, "Translation failed")); emitErr != nil {
				return emitErr
			}
			return &ChunkError{Chunk: i, Err: err}
		}

		if err := emit(TranslationEvent(translated)); err != nil {
			return err
		}
	}

	return emit(DoneEvent())
}

func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
