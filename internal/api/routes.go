package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tubetext/tubetext-server/internal/logging"
	"github.com/tubetext/tubetext-server/internal/transcript"
	"github.com/tubetext/tubetext-server/internal/translate"
)

const maxBodyBytes = 4 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins))

	r.Get("/health", healthHandler())
	r.Get("/health/", healthHandler())
	r.Get("/status", statusHandler(cfg))

	r.Route("/video", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Gate, cfg.Logger))
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

		r.Post("/", videoHandler(cfg))
		r.Post("/premium", premiumVideoHandler(cfg))
		r.Post("/premium/", premiumVideoHandler(cfg))
		r.Post("/summary", summaryHandler(cfg))
		r.Post("/translate", translateHandler(cfg))
	})

	return r
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Version: Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Features: FeaturesStatus{
				Captions:      cfg.Transcripts != nil,
				AudioFallback: cfg.Transcripts != nil && cfg.Transcripts.AudioEnabled(),
				Summary:       cfg.Summarizer != nil,
				Translation:   cfg.Translator != nil,
			},
		}

		if cfg.Database != nil {
			resp.Database = "ok"
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			if err := cfg.Database.Ping(ctx); err != nil {
				requestLogger(cfg.Logger, r).Warn("database ping failed", "error", err)
				resp.Database = "unavailable"
			}
			cancel()
		}

		// Only the cached probe is reported; probing spawns subprocesses.
		if cfg.Doctor != nil {
			resp.Tools = toolsStatus(cfg.Doctor.Peek())
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// videoHandler serves the free transcript: captions only, counted against
// the caller's free allowance when signed in.
func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := requestLogger(cfg.Logger, r)

		req, err := decodeVideoRequest(w, r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		user := UserFromContext(ctx)
		if err := cfg.Gate.ConsumeFreeUse(ctx, user); err != nil {
			writeGateError(w, logger, err)
			return
		}

		result := cfg.Transcripts.Run(ctx, req.toTranscriptRequest(), transcript.ModeCaptionsOnly)
		if !result.Success {
			logger.Info("transcript failed", "error", result.Err)
			if err := cfg.Gate.RefundFreeUse(context.WithoutCancel(ctx), user); err != nil {
				logger.Warn("usage refund failed", "error", err)
			}
		}

		WriteJSON(w, http.StatusOK, result)
	}
}

// premiumVideoHandler serves premium users and may fall back to audio
// transcription when the video has no captions.
func premiumVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := requestLogger(cfg.Logger, r)

		if err := cfg.Gate.RequirePremium(UserFromContext(ctx)); err != nil {
			writeGateError(w, logger, err)
			return
		}

		req, err := decodeVideoRequest(w, r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		result := cfg.Transcripts.Run(ctx, req.toTranscriptRequest(), transcript.ModeAudioFallback)
		if !result.Success {
			logger.Info("premium transcript failed", "error", result.Err)
		}

		WriteJSON(w, http.StatusOK, result)
	}
}

func summaryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := requestLogger(cfg.Logger, r)

		if err := cfg.Gate.RequirePremium(UserFromContext(ctx)); err != nil {
			writeGateError(w, logger, err)
			return
		}
		if cfg.Summarizer == nil {
			WriteError(w, http.StatusServiceUnavailable, "summaries are not available", "UNAVAILABLE")
			return
		}

		var req SummaryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validateRequest(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		summary, err := cfg.Summarizer.Invoke(ctx, req.Transcription)
		if err != nil {
			logger.Error("summary failed", "error", err)
			WriteError(w, http.StatusBadGateway, "summary failed", "UPSTREAM_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, SummaryResponse{Summary: summary})
	}
}

// translateHandler streams one event per translated chunk and a final done
// event. A chunk that cannot be translated ends the stream with an error
// event instead.
func translateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(cfg.Logger, r)

		if cfg.Translator == nil {
			WriteError(w, http.StatusServiceUnavailable, "translation is not available", "UNAVAILABLE")
			return
		}

		var req TranslateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validateRequest(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		stream, err := newSSEWriter(w)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		start := time.Now()
		err = cfg.Translator.Stream(r.Context(), req.segments(), req.Language, func(ev translate.Event) error {
			return stream.Send(ev)
		})

		var chunkErr *translate.ChunkError
		switch {
		case err == nil:
			logger.Info("translation streamed",
				"segments", len(req.Segments),
				"language", req.Language,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		case errors.Is(err, context.Canceled):
			logger.Info("translation client disconnected", "segments", len(req.Segments))
		case errors.As(err, &chunkErr):
			logger.Warn("translation stream ended early", "chunk", chunkErr.Chunk, "error", chunkErr.Err)
		default:
			logger.Error("translation stream failed", "error", err)
		}
	}
}

// decodeVideoRequest reads video_url and language from the query string,
// falling back to a JSON body when the query has no video_url.
func decodeVideoRequest(w http.ResponseWriter, r *http.Request) (VideoRequest, error) {
	q := r.URL.Query()
	req := VideoRequest{
		VideoURL: strings.TrimSpace(q.Get("video_url")),
		Language: strings.TrimSpace(q.Get("language")),
	}

	if req.VideoURL == "" && r.ContentLength != 0 {
		var body VideoRequest
		if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
			return req, errors.New("invalid request body")
		}
		req.VideoURL = strings.TrimSpace(body.VideoURL)
		if req.Language == "" {
			req.Language = strings.TrimSpace(body.Language)
		}
	}

	return req, validateRequest(req)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func requestLogger(base *slog.Logger, r *http.Request) *slog.Logger {
	requestID, _ := r.Context().Value(RequestIDKey).(string)
	logger := logging.WithRequestID(base, requestID)
	if u := UserFromContext(r.Context()); u != nil {
		logger = logging.WithUserID(logger, u.ID)
	}
	return logger
}
