// Package config provides configuration management for the TubeText server.
// Configuration is loaded from environment variables with sensible defaults.
// A .env file, when present, is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8000
	DefaultLogLevel = "info"
	DefaultDataDir  = ".tubetext"

	// Environment variable names
	EnvHost     = "TUBETEXT_HOST"
	EnvPort     = "TUBETEXT_PORT"
	EnvLogLevel = "TUBETEXT_LOG_LEVEL"
	EnvDataDir  = "TUBETEXT_DATA_DIR"
	EnvTempDir  = "TUBETEXT_TEMP_DIR"

	// Credentials
	EnvJWTSecret       = "JWT_SECRET"
	EnvDeepgramAPIKey  = "DEEPGRAM_API_KEY"
	EnvDeepgramBaseURL = "DEEPGRAM_BASE_URL"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOpenAIBaseURL   = "OPENAI_BASE_URL"
	EnvYouTubeAPIKey   = "YOUTUBE_API_KEY"

	// Pipeline settings
	EnvLLMModel           = "TUBETEXT_LLM_MODEL"
	EnvPromptsFile        = "TUBETEXT_PROMPTS_FILE"
	EnvYTDLPPath          = "TUBETEXT_YTDLP_PATH"
	EnvDownloadTimeout    = "TUBETEXT_DOWNLOAD_TIMEOUT"
	EnvTranscribeTimeout  = "TUBETEXT_TRANSCRIBE_TIMEOUT"
	EnvAudioLanguage      = "TUBETEXT_AUDIO_LANGUAGE"
	EnvTranslateChunkSize = "TUBETEXT_TRANSLATE_CHUNK_SIZE"

	// Access and usage
	EnvFreeUsageLimit = "TUBETEXT_FREE_USAGE_LIMIT"
	EnvUsageWindow    = "TUBETEXT_USAGE_WINDOW"
	EnvAllowedOrigins = "TUBETEXT_ALLOWED_ORIGINS"
	EnvRateLimitRPS   = "TUBETEXT_RATE_LIMIT_RPS"
	EnvRateLimitBurst = "TUBETEXT_RATE_LIMIT_BURST"

	// Database filename
	DBFilename = "tubetext.db"

	DefaultLLMModel           = "gpt-5-nano"
	DefaultYTDLPPath          = "yt-dlp"
	DefaultDownloadTimeout    = 10 * time.Minute
	DefaultTranscribeTimeout  = 300 * time.Second
	DefaultAudioLanguage      = "en"
	DefaultTranslateChunkSize = 1
	DefaultFreeUsageLimit     = 5
	DefaultUsageWindow        = 24 * time.Hour
	DefaultAllowedOrigins     = "http://localhost:3000"
	DefaultRateLimitRPS       = 2.0
	DefaultRateLimitBurst     = 10
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	TempDir() string

	JWTSecret() string
	DeepgramAPIKey() string
	DeepgramBaseURL() string
	OpenAIAPIKey() string
	OpenAIBaseURL() string
	YouTubeAPIKey() string

	LLMModel() string
	PromptsFile() string
	YTDLPPath() string
	DownloadTimeout() time.Duration
	TranscribeTimeout() time.Duration
	AudioLanguage() string
	TranslateChunkSize() int

	FreeUsageLimit() int
	UsageWindow() time.Duration
	AllowedOrigins() []string
	RateLimitRPS() float64
	RateLimitBurst() int
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	host     string
	port     int
	logLevel string
	dataDir  string
	tempDir  string

	jwtSecret       string
	deepgramAPIKey  string
	deepgramBaseURL string
	openAIAPIKey    string
	openAIBaseURL   string
	youTubeAPIKey   string

	llmModel           string
	promptsFile        string
	ytdlpPath          string
	downloadTimeout    time.Duration
	transcribeTimeout  time.Duration
	audioLanguage      string
	translateChunkSize int

	freeUsageLimit int
	usageWindow    time.Duration
	allowedOrigins []string
	rateLimitRPS   float64
	rateLimitBurst int
}

// LoadEnvFile loads key=value pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		host:               DefaultHost,
		port:               DefaultPort,
		logLevel:           DefaultLogLevel,
		dataDir:            defaultDataDir(),
		tempDir:            os.TempDir(),
		llmModel:           DefaultLLMModel,
		ytdlpPath:          DefaultYTDLPPath,
		downloadTimeout:    DefaultDownloadTimeout,
		transcribeTimeout:  DefaultTranscribeTimeout,
		audioLanguage:      DefaultAudioLanguage,
		translateChunkSize: DefaultTranslateChunkSize,
		freeUsageLimit:     DefaultFreeUsageLimit,
		usageWindow:        DefaultUsageWindow,
		allowedOrigins:     splitList(DefaultAllowedOrigins),
		rateLimitRPS:       DefaultRateLimitRPS,
		rateLimitBurst:     DefaultRateLimitBurst,
	}

	if h := os.Getenv(EnvHost); h != "" {
		cfg.host = h
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	if td := os.Getenv(EnvTempDir); td != "" {
		cfg.tempDir = td
	}

	cfg.jwtSecret = os.Getenv(EnvJWTSecret)
	cfg.deepgramAPIKey = os.Getenv(EnvDeepgramAPIKey)
	cfg.deepgramBaseURL = os.Getenv(EnvDeepgramBaseURL)
	cfg.openAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.openAIBaseURL = os.Getenv(EnvOpenAIBaseURL)
	cfg.youTubeAPIKey = os.Getenv(EnvYouTubeAPIKey)
	cfg.promptsFile = os.Getenv(EnvPromptsFile)

	if m := os.Getenv(EnvLLMModel); m != "" {
		cfg.llmModel = m
	}
	if y := os.Getenv(EnvYTDLPPath); y != "" {
		cfg.ytdlpPath = y
	}
	if l := os.Getenv(EnvAudioLanguage); l != "" {
		cfg.audioLanguage = l
	}
	if o := os.Getenv(EnvAllowedOrigins); o != "" {
		cfg.allowedOrigins = splitList(o)
	}

	var err error
	if cfg.downloadTimeout, err = durationEnv(EnvDownloadTimeout, cfg.downloadTimeout); err != nil {
		return nil, err
	}
	if cfg.transcribeTimeout, err = durationEnv(EnvTranscribeTimeout, cfg.transcribeTimeout); err != nil {
		return nil, err
	}
	if cfg.usageWindow, err = durationEnv(EnvUsageWindow, cfg.usageWindow); err != nil {
		return nil, err
	}
	if cfg.translateChunkSize, err = positiveIntEnv(EnvTranslateChunkSize, cfg.translateChunkSize); err != nil {
		return nil, err
	}
	if cfg.freeUsageLimit, err = positiveIntEnv(EnvFreeUsageLimit, cfg.freeUsageLimit); err != nil {
		return nil, err
	}
	if cfg.rateLimitBurst, err = positiveIntEnv(EnvRateLimitBurst, cfg.rateLimitBurst); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvRateLimitRPS); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRateLimitRPS, err)
		}
		if rps <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvRateLimitRPS)
		}
		cfg.rateLimitRPS = rps
	}

	return cfg, nil
}

// Host returns the HTTP listen host
func (c *EnvConfig) Host() string {
	return c.host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// TempDir returns the parent directory for per-request audio scratch dirs
func (c *EnvConfig) TempDir() string {
	return c.tempDir
}

func (c *EnvConfig) JWTSecret() string {
	return c.jwtSecret
}

func (c *EnvConfig) DeepgramAPIKey() string {
	return c.deepgramAPIKey
}

func (c *EnvConfig) DeepgramBaseURL() string {
	return c.deepgramBaseURL
}

func (c *EnvConfig) OpenAIAPIKey() string {
	return c.openAIAPIKey
}

func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

func (c *EnvConfig) YouTubeAPIKey() string {
	return c.youTubeAPIKey
}

func (c *EnvConfig) LLMModel() string {
	return c.llmModel
}

// PromptsFile returns an optional YAML file overriding the built-in prompts
func (c *EnvConfig) PromptsFile() string {
	return c.promptsFile
}

func (c *EnvConfig) YTDLPPath() string {
	return c.ytdlpPath
}

func (c *EnvConfig) DownloadTimeout() time.Duration {
	return c.downloadTimeout
}

func (c *EnvConfig) TranscribeTimeout() time.Duration {
	return c.transcribeTimeout
}

func (c *EnvConfig) AudioLanguage() string {
	return c.audioLanguage
}

func (c *EnvConfig) TranslateChunkSize() int {
	return c.translateChunkSize
}

func (c *EnvConfig) FreeUsageLimit() int {
	return c.freeUsageLimit
}

func (c *EnvConfig) UsageWindow() time.Duration {
	return c.usageWindow
}

func (c *EnvConfig) AllowedOrigins() []string {
	return c.allowedOrigins
}

func (c *EnvConfig) RateLimitRPS() float64 {
	return c.rateLimitRPS
}

func (c *EnvConfig) RateLimitBurst() int {
	return c.rateLimitBurst
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", name)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func positiveIntEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: must be at least 1", name)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
