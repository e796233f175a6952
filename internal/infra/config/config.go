// Package config provides application-wide configuration loaded from env vars,
// plus an optional YAML file for the solver section.
// All fields have safe defaults so the binary runs locally without any env setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

// Config holds runtime configuration for Tutora.
type Config struct {
	// Storage / HTTP
	DBPath string // TUTORA_DB_PATH — default: "./data/tutora.db"
	Host   string // TUTORA_HOST — default: "0.0.0.0"
	Port   int    // TUTORA_PORT — default: 8080

	// Logging
	LogLevel  string // LOG_LEVEL — default: "info"
	LogFormat string // LOG_FORMAT — "json" | "console", default: "json"

	// Usage limits
	FreeQuestionLimit  int // FREE_QUESTION_LIMIT — guest questions before sign-up, default: 2
	RateLimitPerMinute int // RATE_LIMIT_PER_MINUTE — per-user ask budget, default: 30

	// Stats
	StatsRetention time.Duration // STATS_RETENTION — attempt history kept, default: 720h, 0 keeps all

	// LLM
	LLMProvider       string   // LLM_PROVIDER — "ollama" | "huggingface", default: "ollama"
	OllamaBaseURL     string   // OLLAMA_BASE_URL — default: "http://localhost:11434"
	OllamaChatModel   string   // OLLAMA_CHAT_MODEL — default: "llama3.2:3b"
	HuggingFaceURL    string   // HUGGINGFACE_URL — default: hosted inference API
	HuggingFaceToken  string   // HUGGINGFACE_TOKEN (or HUGGINGFACE_API_KEY)
	HuggingFaceModels []string // HUGGINGFACE_MODELS — comma separated

	// Solver
	SolverConfigPath string // TUTORA_SOLVER_CONFIG — optional YAML file
	Solver           SolverFile
}

const (
	envKeyDBPath            = "TUTORA_DB_PATH"
	envKeyHost              = "TUTORA_HOST"
	envKeyPort              = "TUTORA_PORT"
	envKeyLogLevel          = "LOG_LEVEL"
	envKeyLogFormat         = "LOG_FORMAT"
	envKeyFreeQuestionLimit = "FREE_QUESTION_LIMIT"
	envKeyRateLimit         = "RATE_LIMIT_PER_MINUTE"
	envKeyStatsRetention    = "STATS_RETENTION"
	envKeyLLMProvider       = "LLM_PROVIDER"
	envKeyOllamaBaseURL     = "OLLAMA_BASE_URL"
	envKeyOllamaChatModel   = "OLLAMA_CHAT_MODEL"
	envKeyHFURL             = "HUGGINGFACE_URL"
	envKeyHFToken           = "HUGGINGFACE_TOKEN"
	envKeyHFAPIKey          = "HUGGINGFACE_API_KEY"
	envKeyHFModels          = "HUGGINGFACE_MODELS"
	envKeySolverConfig      = "TUTORA_SOLVER_CONFIG"
	envKeySolverThreshold   = "SOLVER_THRESHOLD"
	envKeySolverTimeout     = "SOLVER_STRATEGY_TIMEOUT"
)

// Load reads configuration from environment variables, applying defaults for
// missing values. When TUTORA_SOLVER_CONFIG names a file it is parsed and
// SOLVER_THRESHOLD / SOLVER_STRATEGY_TIMEOUT override its values.
func Load() (Config, error) {
	cfg := Config{
		DBPath:             envOr(envKeyDBPath, "./data/tutora.db"),
		Host:               envOr(envKeyHost, "0.0.0.0"),
		Port:               envInt(envKeyPort, 8080),
		LogLevel:           envOr(envKeyLogLevel, "info"),
		LogFormat:          envOr(envKeyLogFormat, "json"),
		FreeQuestionLimit:  envInt(envKeyFreeQuestionLimit, 2),
		RateLimitPerMinute: envInt(envKeyRateLimit, 30),
		StatsRetention:     envDuration(envKeyStatsRetention, 720*time.Hour),
		LLMProvider:        envOr(envKeyLLMProvider, "ollama"),
		OllamaBaseURL:      envOr(envKeyOllamaBaseURL, "http://localhost:11434"),
		OllamaChatModel:    envOr(envKeyOllamaChatModel, "llama3.2:3b"),
		HuggingFaceURL:     os.Getenv(envKeyHFURL),
		HuggingFaceToken:   envOr(envKeyHFToken, os.Getenv(envKeyHFAPIKey)),
		HuggingFaceModels:  splitList(os.Getenv(envKeyHFModels)),
		SolverConfigPath:   os.Getenv(envKeySolverConfig),
		Solver:             DefaultSolverFile(),
	}

	if cfg.SolverConfigPath != "" {
		file, err := LoadSolverFile(cfg.SolverConfigPath)
		if err != nil {
			return Config{}, err
		}
		cfg.Solver = file
	}
	if v := os.Getenv(envKeySolverThreshold); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envKeySolverThreshold, err)
		}
		cfg.Solver.Threshold = n
	}
	if v := os.Getenv(envKeySolverTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envKeySolverTimeout, err)
		}
		cfg.Solver.Timeout = d
	}
	return cfg, cfg.Solver.Validate()
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt parses key as an int; unset or unparsable values yield fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envDuration parses key as a time.Duration; unset or unparsable values yield fallback.
func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
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

// ─── solver file ─────────────────────────────────────────────────────────────

// Strategy names understood by the strategies package.
var knownStrategies = map[string]bool{
	"template":  true,
	"inference": true,
	"reference": true,
	"heuristic": true,
}

// ErrInvalidSolverConfig wraps every validation failure of the solver section.
var ErrInvalidSolverConfig = errors.New("invalid solver config")

// SolverFile is the YAML shape of the solver section.
type SolverFile struct {
	Strategies []string             `yaml:"strategies"`
	Threshold  int                  `yaml:"threshold"`
	Timeout    time.Duration        `yaml:"timeout"`
	Mode       string               `yaml:"mode"`
	RaceWidth  int                  `yaml:"race_width"`
	Fallback   solver.FallbackTable `yaml:"fallback"`
	Inference  InferenceFile        `yaml:"inference"`
	Reference  ReferenceFile        `yaml:"reference"`
	Template   TemplateFile         `yaml:"template"`
}

// InferenceFile tunes the remote text generation strategy.
type InferenceFile struct {
	Confidence  int     `yaml:"confidence"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ReferenceFile points the reference lookup strategy at an HTML source.
type ReferenceFile struct {
	URL            string `yaml:"url"` // must contain {query}
	StepSelector   string `yaml:"step_selector"`
	MathSelector   string `yaml:"math_selector"`
	AnswerSelector string `yaml:"answer_selector"`
	Confidence     int    `yaml:"confidence"`
}

// TemplateFile tunes the admin template strategy.
type TemplateFile struct {
	DefaultConfidence int `yaml:"default_confidence"`
}

// DefaultSolverFile mirrors solver.DefaultConfig. The reference strategy has
// no default target, so it is only enabled by a solver file that names one.
func DefaultSolverFile() SolverFile {
	def := solver.DefaultConfig()
	return SolverFile{
		Strategies: []string{"template", "inference", "heuristic"},
		Threshold:  def.Threshold,
		Timeout:    def.PerStrategyTimeout,
		Mode:       string(def.Mode),
		RaceWidth:  def.RaceWidth,
		Inference:  InferenceFile{Confidence: 85, Temperature: 0.7, MaxTokens: 500},
		Reference: ReferenceFile{
			StepSelector:   ".step",
			MathSelector:   ".math",
			AnswerSelector: ".answer",
			Confidence:     50,
		},
		Template: TemplateFile{DefaultConfidence: 90},
	}
}

// LoadSolverFile parses path over DefaultSolverFile, so omitted keys keep their defaults.
func LoadSolverFile(path string) (SolverFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SolverFile{}, fmt.Errorf("config: read solver file: %w", err)
	}
	return ParseSolverFile(raw)
}

// ParseSolverFile decodes YAML bytes over DefaultSolverFile.
func ParseSolverFile(raw []byte) (SolverFile, error) {
	f := DefaultSolverFile()
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return SolverFile{}, fmt.Errorf("config: parse solver file: %w", err)
	}
	return f, f.Validate()
}

// Validate rejects unknown strategies, duplicate entries and out-of-range values.
func (f SolverFile) Validate() error {
	if len(f.Strategies) == 0 {
		return fmt.Errorf("%w: no strategies configured", ErrInvalidSolverConfig)
	}
	seen := make(map[string]bool, len(f.Strategies))
	for _, name := range f.Strategies {
		if !knownStrategies[name] {
			return fmt.Errorf("%w: unknown strategy %q", ErrInvalidSolverConfig, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: strategy %q listed twice", ErrInvalidSolverConfig, name)
		}
		seen[name] = true
	}
	if f.Threshold < solver.MinConfidence || f.Threshold > solver.MaxConfidence {
		return fmt.Errorf("%w: threshold %d outside [0,100]", ErrInvalidSolverConfig, f.Threshold)
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidSolverConfig)
	}
	switch solver.Mode(f.Mode) {
	case solver.ModeSequential, solver.ModeRace:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSolverConfig, f.Mode)
	}
	if seen["reference"] && !strings.Contains(f.Reference.URL, "{query}") {
		return fmt.Errorf("%w: reference.url must contain {query}", ErrInvalidSolverConfig)
	}
	return nil
}

// Coordinator converts the file into the coordinator's Config.
// Configured fallback messages are merged over the built-in table.
func (f SolverFile) Coordinator() solver.Config {
	return solver.Config{
		Threshold:          f.Threshold,
		PerStrategyTimeout: f.Timeout,
		Mode:               solver.Mode(f.Mode),
		RaceWidth:          f.RaceWidth,
		Fallback:           solver.DefaultFallbackTable().Merge(f.Fallback),
	}
}
