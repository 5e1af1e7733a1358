// Package speech converts extracted audio to timed text with the Deepgram
// pre-recorded transcription API.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubetext/tubetext-server/internal/logging"
)

const (
	DefaultBaseURL  = "https://api.deepgram.com"
	DefaultModel    = "nova-3"
	DefaultLanguage = "en"
	DefaultTimeout  = 300 * time.Second
)

var ErrMissingAPIKey = errors.New("deepgram API key not configured")

// APIError is a non-2xx response from the transcription service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deepgram request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limiting and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Utterance is one speaker turn with its time range in seconds.
type Utterance struct {
	Start      float64
	End        float64
	Transcript string
}

// Result is the normalized service response.
type Result struct {
	Transcript string // full text of channel 0, best alternative
	Utterances []Utterance
	Duration   float64
}

type Options struct {
	Language    string
	ContentType string // default audio/mpeg
}

// Transcriber turns audio bytes into timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts Options) (*Result, error)
}

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
	Logger   *slog.Logger
}

type DeepgramClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDeepgramClient(cfg Config) *DeepgramClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &DeepgramClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logging.WithComponent(logger, "speech"),
	}
}

func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	lang := c.cfg.Language
	if opts.Language != "" {
		lang = opts.Language
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	q := url.Values{}
	q.Set("model", c.cfg.Model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	q.Set("language", lang)
	endpoint := c.cfg.BaseURL + "/v1/listen?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	c.logger.Info("sending audio for transcription",
		"bytes", len(audio),
		"model", c.cfg.Model,
		"language", lang,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var dr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode deepgram response: %w", err)
	}

	result := dr.toResult()
	c.logger.Info("transcription complete",
		"utterances", len(result.Utterances),
		"duration_s", result.Duration,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// --- internal Deepgram API response types ---

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

func (r *listenResponse) toResult() *Result {
	out := &Result{Duration: r.Metadata.Duration}
	if len(r.Results.Channels) > 0 && len(r.Results.Channels[0].Alternatives) > 0 {
		out.Transcript = r.Results.Channels[0].Alternatives[0].Transcript
	}
	out.Utterances = make([]Utterance, 0, len(r.Results.Utterances))
	for _, u := range r.Results.Utterances {
		out.Utterances = append(out.Utterances, Utterance{
			Start:      u.Start,
			End:        u.End,
			Transcript: u.Transcript,
		})
	}
	return out
}

var _ Transcriber = (*DeepgramClient)(nil)
