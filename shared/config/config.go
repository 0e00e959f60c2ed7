package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"repair-stack/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CatalogYtDLP   = "ytdlp"
	CatalogYouTube = "youtube"

	ReasonerOllama = "ollama"
	ReasonerGemini = "gemini"
	ReasonerOpenAI = "openai"
)

type Config struct {
	Admission AdmissionConfig `yaml:"admission"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Download  DownloadConfig  `yaml:"download"`
	Reasoner  ReasonerConfig  `yaml:"reasoner"`
	Selection SelectionConfig `yaml:"selection"`
	Devices   DevicesConfig   `yaml:"devices"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Watch     WatchConfig     `yaml:"watch"`
}

// AdmissionConfig uses pointers so that a threshold left out of both the file
// and the environment is reported instead of silently becoming zero.
type AdmissionConfig struct {
	MinViews           *int64   `yaml:"min_views"`
	MinDurationSeconds *int64   `yaml:"min_duration_seconds"`
	MaxDurationSeconds *int64   `yaml:"max_duration_seconds"`
	MinLikeRatio       *float64 `yaml:"min_like_ratio"`
}

type CatalogConfig struct {
	Backend        string        `yaml:"backend"`
	SearchResults  int           `yaml:"search_results"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	YtDLPPath      string        `yaml:"ytdlp_path"`
	YouTube        YouTubeConfig `yaml:"youtube"`
}

type YouTubeConfig struct {
	APIKey       string `yaml:"api_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenFile    string `yaml:"token_file"`
}

type DownloadConfig struct {
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	StoryboardFormat string `yaml:"storyboard_format"`
	SubtitleLanguage string `yaml:"subtitle_language"`
}

type ReasonerConfig struct {
	Backend        string `yaml:"backend"`
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PromptTemplate string `yaml:"prompt_template"`
}

type SelectionConfig struct {
	MaxVideos int `yaml:"max_videos"`
}

type DevicesConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type OutputConfig struct {
	ResultsDir string `yaml:"results_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WatchConfig struct {
	Schedule     string      `yaml:"schedule"`
	Queries      []string    `yaml:"queries"`
	RefreshHours int         `yaml:"refresh_hours"`
	HealthPort   int         `yaml:"health_port"`
	Email        EmailConfig `yaml:"email"`
}

// EmailConfig configures the digest mailed after a watch pass. Mail is off
// unless both smtp_server and to_email are set.
type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.ToEmail != ""
}

// ConfigurationError reports a missing or invalid setting. It is only ever
// produced while loading, never while serving a request.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Load reads CONFIG_FILE (default config.yaml) after loading .env. The default
// file may be absent when the environment supplies every required value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		return load("config.yaml", false)
	}
	return load(configFile, true)
}

// LoadFile reads the given configuration file; it must exist.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()
	return load(path, true)
}

func load(path string, required bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ConfigurationError{Field: path, Reason: "failed to parse config file", Err: err}
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, &ConfigurationError{Field: path, Reason: "failed to read config file", Err: err}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Admission.MinViews, err = envInt64("MIN_VIEWS", c.Admission.MinViews); err != nil {
		return err
	}
	if c.Admission.MinDurationSeconds, err = envInt64("MIN_DURATION", c.Admission.MinDurationSeconds); err != nil {
		return err
	}
	if c.Admission.MaxDurationSeconds, err = envInt64("MAX_DURATION", c.Admission.MaxDurationSeconds); err != nil {
		return err
	}
	if c.Admission.MinLikeRatio, err = envFloat("MIN_LIKE_RATIO", c.Admission.MinLikeRatio); err != nil {
		return err
	}

	if c.Catalog.YouTube.APIKey == "" {
		c.Catalog.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if c.Catalog.YouTube.ClientID == "" {
		c.Catalog.YouTube.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if c.Catalog.YouTube.ClientSecret == "" {
		c.Catalog.YouTube.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if c.Reasoner.URL == "" {
		c.Reasoner.URL = os.Getenv("OLLAMA_URL")
	}
	if c.Reasoner.Model == "" {
		c.Reasoner.Model = os.Getenv("OLLAMA_MODEL")
	}
	if c.Reasoner.APIKey == "" {
		switch strings.ToLower(c.Reasoner.Backend) {
		case ReasonerGemini:
			c.Reasoner.APIKey = os.Getenv("GEMINI_API_KEY")
		case ReasonerOpenAI:
			c.Reasoner.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Reasoner.PromptTemplate == "" {
		c.Reasoner.PromptTemplate = os.Getenv("PROMPT_SUBTITLES")
	}
	if c.Devices.DatabasePath == "" {
		c.Devices.DatabasePath = os.Getenv("DEVICE_DB")
	}
	if c.Watch.Email.Username == "" {
		c.Watch.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if c.Watch.Email.Password == "" {
		c.Watch.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Catalog.Backend = strings.ToLower(strings.TrimSpace(c.Catalog.Backend))
	if c.Catalog.Backend == "" {
		c.Catalog.Backend = CatalogYtDLP
	}
	if c.Catalog.SearchResults == 0 {
		c.Catalog.SearchResults = 10
	}
	if c.Catalog.TimeoutSeconds == 0 {
		c.Catalog.TimeoutSeconds = 60
	}
	if c.Catalog.YtDLPPath == "" {
		c.Catalog.YtDLPPath = "yt-dlp"
	}
	if c.Catalog.YouTube.TokenFile == "" {
		c.Catalog.YouTube.TokenFile = "youtube_token.json"
	}

	if c.Download.TimeoutSeconds == 0 {
		c.Download.TimeoutSeconds = 300
	}
	if c.Download.StoryboardFormat == "" {
		c.Download.StoryboardFormat = "sb0"
	}
	if c.Download.SubtitleLanguage == "" {
		c.Download.SubtitleLanguage = "en"
	}

	c.Reasoner.Backend = strings.ToLower(strings.TrimSpace(c.Reasoner.Backend))
	if c.Reasoner.Backend == "" {
		c.Reasoner.Backend = ReasonerOllama
	}
	if c.Reasoner.TimeoutSeconds == 0 {
		c.Reasoner.TimeoutSeconds = 120
	}
	if c.Reasoner.Model == "" && c.Reasoner.Backend == ReasonerGemini {
		c.Reasoner.Model = "gemini-2.5-flash"
	}

	if c.Selection.MaxVideos == 0 {
		c.Selection.MaxVideos = 3
	}
	if c.Output.ResultsDir == "" {
		c.Output.ResultsDir = "results"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Watch.Schedule == "" {
		c.Watch.Schedule = "0 0 6 * * *" // Daily at 6 AM
	}
	if c.Watch.RefreshHours == 0 {
		c.Watch.RefreshHours = 24
	}
	if c.Watch.HealthPort == 0 {
		c.Watch.HealthPort = 8080
	}
	if c.Watch.Email.SMTPPort == 0 {
		c.Watch.Email.SMTPPort = 587
	}
	if c.Watch.Email.FromEmail == "" {
		c.Watch.Email.FromEmail = c.Watch.Email.Username
	}
}

func (c *Config) validate() error {
	a := c.Admission
	if a.MinViews == nil {
		return &ConfigurationError{Field: "admission.min_views", Reason: "is required (set MIN_VIEWS)"}
	}
	if a.MinDurationSeconds == nil {
		return &ConfigurationError{Field: "admission.min_duration_seconds", Reason: "is required (set MIN_DURATION)"}
	}
	if a.MaxDurationSeconds == nil {
		return &ConfigurationError{Field: "admission.max_duration_seconds", Reason: "is required (set MAX_DURATION)"}
	}
	if a.MinLikeRatio == nil {
		return &ConfigurationError{Field: "admission.min_like_ratio", Reason: "is required (set MIN_LIKE_RATIO)"}
	}
	if *a.MinViews < 0 || *a.MinDurationSeconds < 0 {
		return &ConfigurationError{Field: "admission", Reason: "thresholds must not be negative"}
	}
	if *a.MaxDurationSeconds < *a.MinDurationSeconds {
		return &ConfigurationError{Field: "admission.max_duration_seconds", Reason: "must not be below min_duration_seconds"}
	}
	if math.IsNaN(*a.MinLikeRatio) || *a.MinLikeRatio < 0 || *a.MinLikeRatio > 1 {
		return &ConfigurationError{Field: "admission.min_like_ratio", Reason: "must be between 0 and 1"}
	}

	switch c.Catalog.Backend {
	case CatalogYtDLP:
	case CatalogYouTube:
		yt := c.Catalog.YouTube
		if yt.APIKey == "" && (yt.ClientID == "" || yt.ClientSecret == "") {
			return &ConfigurationError{Field: "catalog.youtube", Reason: "api_key or client_id/client_secret is required (set YOUTUBE_API_KEY)"}
		}
	default:
		return &ConfigurationError{Field: "catalog.backend", Reason: fmt.Sprintf("unsupported value %q", c.Catalog.Backend)}
	}
	if c.Catalog.SearchResults < 0 {
		return &ConfigurationError{Field: "catalog.search_results", Reason: "must be positive"}
	}

	switch c.Reasoner.Backend {
	case ReasonerOllama:
		if c.Reasoner.URL == "" {
			return &ConfigurationError{Field: "reasoner.url", Reason: "is required (set OLLAMA_URL)"}
		}
	case ReasonerGemini, ReasonerOpenAI:
		if c.Reasoner.APIKey == "" {
			return &ConfigurationError{Field: "reasoner.api_key", Reason: "is required for the " + c.Reasoner.Backend + " backend"}
		}
	default:
		return &ConfigurationError{Field: "reasoner.backend", Reason: fmt.Sprintf("unsupported value %q", c.Reasoner.Backend)}
	}
	if c.Reasoner.Model == "" {
		return &ConfigurationError{Field: "reasoner.model", Reason: "is required (set OLLAMA_MODEL)"}
	}
	if c.Reasoner.PromptTemplate != "" {
		if _, err := os.Stat(c.Reasoner.PromptTemplate); err != nil {
			return &ConfigurationError{Field: "reasoner.prompt_template", Reason: "cannot be read", Err: err}
		}
	}

	if c.Selection.MaxVideos < 0 {
		return &ConfigurationError{Field: "selection.max_videos", Reason: "must be positive"}
	}
	return nil
}

// Thresholds returns the admission thresholds. Only valid on a loaded Config.
func (c *Config) Thresholds() models.AdmissionThresholds {
	var t models.AdmissionThresholds
	if v := c.Admission.MinViews; v != nil {
		t.MinViews = *v
	}
	if v := c.Admission.MinDurationSeconds; v != nil {
		t.MinDuration = time.Duration(*v) * time.Second
	}
	if v := c.Admission.MaxDurationSeconds; v != nil {
		t.MaxDuration = time.Duration(*v) * time.Second
	}
	if v := c.Admission.MinLikeRatio; v != nil {
		t.MinLikeRatio = *v
	}
	return t
}

func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DownloadConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ReasonerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WatchConfig) RefreshAfter() time.Duration {
	return time.Duration(c.RefreshHours) * time.Hour
}

func envInt64(key string, current *int64) (*int64, error) {
	if current != nil {
		return current, nil
	}
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &ConfigurationError{Field: key, Reason: "must be an integer", Err: err}
	}
	return &v, nil
}

func envFloat(key string, current *float64) (*float64, error) {
	if current != nil {
		return current, nil
	}
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ConfigurationError{Field: key, Reason: "must be a number", Err: err}
	}
	return &v, nil
}
