package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tubetext/tubetext-server/internal/account"
	"github.com/tubetext/tubetext-server/internal/audio"
	"github.com/tubetext/tubetext-server/internal/transcript"
	"github.com/tubetext/tubetext-server/internal/translate"
)

const Version = "0.1.0"

// TranscriptService produces a transcript for one request.
type TranscriptService interface {
	Run(ctx context.Context, req transcript.Request, mode transcript.Mode) *transcript.Result
	AudioEnabled() bool
}

type Summarizer interface {
	Invoke(ctx context.Context, message string) (string, error)
}

type TranslationStreamer interface {
	Stream(ctx context.Context, segments []transcript.Segment, language string, emit func(translate.Event) error) error
}

// AccessGate decides who the caller is and what they may use.
type AccessGate interface {
	Authenticate(r *http.Request) (*account.User, error)
	RequirePremium(user *account.User) error
	ConsumeFreeUse(ctx context.Context, user *account.User) error
	RefundFreeUse(ctx context.Context, user *account.User) error
}

// CapabilityReporter exposes the last known tool probe without running one.
type CapabilityReporter interface {
	Peek() *audio.Capabilities
}

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host           string
	Port           int
	Transcripts    TranscriptService
	Summarizer     Summarizer // nil disables /video/summary
	Translator     TranslationStreamer
	Gate           AccessGate
	Doctor         CapabilityReporter
	Database       Pinger
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
	StartTime      time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Transcription and translation streams run far longer than any
			// fixed write deadline.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
