package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tubetext/tubetext-server/internal/account"
	"github.com/tubetext/tubetext-server/internal/agent"
	"github.com/tubetext/tubetext-server/internal/api"
	"github.com/tubetext/tubetext-server/internal/audio"
	"github.com/tubetext/tubetext-server/internal/config"
	"github.com/tubetext/tubetext-server/internal/db"
	"github.com/tubetext/tubetext-server/internal/logging"
	"github.com/tubetext/tubetext-server/internal/retry"
	"github.com/tubetext/tubetext-server/internal/speech"
	"github.com/tubetext/tubetext-server/internal/transcript"
	"github.com/tubetext/tubetext-server/internal/translate"
	"github.com/tubetext/tubetext-server/internal/youtube"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting tubetext server", "version", api.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if cfg.JWTSecret() == "" {
		logger.Warn("JWT_SECRET not set, every caller is anonymous")
	}
	gate := account.NewGate(account.NewRepository(database.Conn()), account.GateConfig{
		Secret:         cfg.JWTSecret(),
		FreeUsageLimit: cfg.FreeUsageLimit(),
		UsageWindow:    cfg.UsageWindow(),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := audio.NewRunner(audio.Config{
		YTDLPPath:       cfg.YTDLPPath(),
		DownloadTimeout: cfg.DownloadTimeout(),
		ProbeTimeout:    15 * time.Second,
		Logger:          logger,
	})
	doctor := audio.NewCachedDoctor(runner, 0, logger)
	go probeTools(ctx, doctor, logger)

	pipeCfg := transcript.PipelineConfig{
		Captions:      youtube.NewCaptionsClient(youtube.CaptionsConfig{Retry: retry.Default}),
		TempDir:       cfg.TempDir(),
		AudioLanguage: cfg.AudioLanguage(),
		Logger:        logger,
	}

	if key := cfg.YouTubeAPIKey(); key != "" {
		meta, err := youtube.NewMetadataClient(ctx, key)
		if err != nil {
			logger.Warn("video metadata disabled", "error", err)
		} else {
			pipeCfg.Metadata = meta
		}
	}

	// The audio path needs both a downloader and a transcriber; leaving
	// either unset turns it off instead of failing at request time.
	if key := cfg.DeepgramAPIKey(); key != "" {
		pipeCfg.Downloader = runner
		pipeCfg.Transcriber = speech.NewDeepgramClient(speech.Config{
			APIKey:   key,
			BaseURL:  cfg.DeepgramBaseURL(),
			Language: cfg.AudioLanguage(),
			Timeout:  cfg.TranscribeTimeout(),
			Logger:   logger,
		})
	} else {
		logger.Warn("DEEPGRAM_API_KEY not set, audio transcription disabled")
	}

	pipeline := transcript.NewPipeline(pipeCfg)

	srvCfg := api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		Transcripts:    pipeline,
		Gate:           gate,
		Doctor:         doctor,
		Database:       database,
		AllowedOrigins: cfg.AllowedOrigins(),
		RateLimitRPS:   cfg.RateLimitRPS(),
		RateLimitBurst: cfg.RateLimitBurst(),
		Logger:         logger,
		StartTime:      startTime,
	}

	if key := cfg.OpenAIAPIKey(); key != "" {
		prompts, err := agent.LoadPrompts(cfg.PromptsFile())
		if err != nil {
			return fmt.Errorf("failed to load prompts: %w", err)
		}
		client := agent.NewClient(key, cfg.OpenAIBaseURL())

		srvCfg.Summarizer = agent.New(client, cfg.LLMModel(), prompts.Summarize, logger)
		srvCfg.Translator = translate.NewPipeline(
			agent.NewTranslator(client, cfg.LLMModel(), prompts),
			translate.Config{ChunkSize: cfg.TranslateChunkSize(), Logger: logger},
		)
		logger.Info("language model configured", "model", cfg.LLMModel())
	} else {
		logger.Warn("OPENAI_API_KEY not set, summaries and translation disabled")
	}

	apiServer := api.NewServer(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// probeTools fills the doctor cache at startup and refreshes it periodically
// so /status never has to spawn subprocesses.
func probeTools(ctx context.Context, doctor *audio.CachedDoctor, logger *slog.Logger) {
	refresh := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		caps, err := doctor.Refresh(probeCtx)
		if err != nil {
			logger.Warn("tool probe failed", "error", err)
			return
		}
		logger.Info("audio tools detected",
			"yt_dlp", caps.YTDLP.Available,
			"ffmpeg", caps.FFmpeg.Available,
		)
	}

	refresh()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
