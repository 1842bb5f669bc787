package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trendcast/internal/script"
	"trendcast/internal/trend"
)

type Config struct {
	// Server settings
	Port         string
	CronSchedule string // empty disables the scheduled daily run

	// Storage settings
	DatabasePath string

	// Step action settings
	StepBaseURL     string
	StepToken       string
	StepTimeout     time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	MaxStepCalls    int // per-run budget for outbound step calls (0 = unlimited)
	PolishEnabled   bool
	SkipTTS         bool
	NativeLanguage  string
	ForeignLanguage string

	// Trend selection settings
	Selection       trend.SelectionConfig
	DenyKeywords    []string
	AllowCategories []trend.Category

	// Script gate settings
	Gate script.GateConfig

	// Ingestion settings
	SourcesConfigPath string

	// Notification settings (optional)
	TelegramToken  string
	TelegramChatID string

	// App settings
	Debug bool
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		Port:              "8080",
		DatabasePath:      "trendcast.db",
		SourcesConfigPath: "configs/sources.yaml",
		StepTimeout:       120 * time.Second,
		RetryAttempts:     3,
		RetryBackoff:      150 * time.Millisecond,
		MaxStepCalls:      30,
		PolishEnabled:     true,
		NativeLanguage:    "ja",
		ForeignLanguage:   "en",
		Selection: trend.SelectionConfig{
			TargetTotal:           8,
			TargetDeepDive:        2,
			TargetQuickNews:       6,
			MaxHardTopics:         2,
			MinEntertainment:      3,
			SourceDiversityWindow: 2,
			LookbackHours:         24,
			CandidatePoolSize:     60,
			CategoryCaps: map[trend.Category]int{
				trend.CategoryPolicy:   2,
				trend.CategoryBusiness: 2,
				trend.CategoryTech:     3,
			},
		},
		Gate: script.GateConfig{
			MinChars:          3500,
			TargetChars:       4500,
			MaxChars:          7000,
			MaxDuplicateRatio: 0.25,
			DuplicateWindow:   10,
			CharsPerMinute:    320,
			MaxExpandAttempts: 2,
			SourcesHeading:    "参考リンク",
		},
	}

	// Load from environment
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.CronSchedule = os.Getenv("CRON_SCHEDULE")
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", cfg.DatabasePath)
	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG_PATH", cfg.SourcesConfigPath)

	cfg.StepBaseURL = os.Getenv("STEP_BASE_URL")
	cfg.StepToken = os.Getenv("STEP_AUTH_TOKEN")
	cfg.StepTimeout = getEnvDurationOrDefault("STEP_TIMEOUT_SECONDS", cfg.StepTimeout)
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	if v := getEnvIntOrDefault("RETRY_BACKOFF_MS", 0); v > 0 {
		cfg.RetryBackoff = time.Duration(v) * time.Millisecond
	}
	cfg.MaxStepCalls = getEnvIntOrDefault("MAX_STEP_CALLS", cfg.MaxStepCalls)
	cfg.PolishEnabled = getEnvBoolOrDefault("POLISH_ENABLED", cfg.PolishEnabled)
	cfg.SkipTTS = getEnvBoolOrDefault("SKIP_TTS", cfg.SkipTTS)
	cfg.NativeLanguage = getEnvOrDefault("NATIVE_LANGUAGE", cfg.NativeLanguage)
	cfg.ForeignLanguage = getEnvOrDefault("FOREIGN_LANGUAGE", cfg.ForeignLanguage)

	cfg.Selection.TargetTotal = getEnvIntOrDefault("TARGET_TOTAL_TOPICS", cfg.Selection.TargetTotal)
	cfg.Selection.TargetDeepDive = getEnvIntOrDefault("TARGET_DEEP_DIVE_TOPICS", cfg.Selection.TargetDeepDive)
	cfg.Selection.TargetQuickNews = getEnvIntOrDefault("TARGET_QUICK_NEWS_TOPICS", cfg.Selection.TargetQuickNews)
	cfg.Selection.MaxHardTopics = getEnvIntOrDefault("MAX_HARD_TOPICS", cfg.Selection.MaxHardTopics)
	cfg.Selection.MinEntertainment = getEnvIntOrDefault("MIN_ENTERTAINMENT_TOPICS", cfg.Selection.MinEntertainment)
	cfg.Selection.SourceDiversityWindow = getEnvIntOrDefault("SOURCE_DIVERSITY_WINDOW", cfg.Selection.SourceDiversityWindow)
	cfg.Selection.LookbackHours = getEnvIntOrDefault("LOOKBACK_HOURS", cfg.Selection.LookbackHours)
	cfg.Selection.CandidatePoolSize = getEnvIntOrDefault("CANDIDATE_POOL_SIZE", cfg.Selection.CandidatePoolSize)

	if caps := os.Getenv("CATEGORY_CAPS"); caps != "" {
		parsed := map[trend.Category]int{}
		if err := json.Unmarshal([]byte(caps), &parsed); err != nil {
			return nil, fmt.Errorf("CATEGORY_CAPS must be a JSON map of category to int: %w", err)
		}
		cfg.Selection.CategoryCaps = parsed
	}

	cfg.DenyKeywords = splitCSV(os.Getenv("DENY_KEYWORDS"))
	for _, raw := range splitCSV(os.Getenv("ALLOW_CATEGORIES")) {
		cfg.AllowCategories = append(cfg.AllowCategories, trend.NormalizeCategory(raw))
	}

	cfg.Gate.MinChars = getEnvIntOrDefault("SCRIPT_MIN_CHARS", cfg.Gate.MinChars)
	cfg.Gate.TargetChars = getEnvIntOrDefault("SCRIPT_TARGET_CHARS", cfg.Gate.TargetChars)
	cfg.Gate.MaxChars = getEnvIntOrDefault("SCRIPT_MAX_CHARS", cfg.Gate.MaxChars)
	cfg.Gate.CharsPerMinute = getEnvIntOrDefault("CHARS_PER_MINUTE", cfg.Gate.CharsPerMinute)
	cfg.Gate.DuplicateWindow = getEnvIntOrDefault("DUPLICATE_LINE_WINDOW", cfg.Gate.DuplicateWindow)
	if v := os.Getenv("MAX_DUPLICATE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Gate.MaxDuplicateRatio = f
		}
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.StepBaseURL == "" {
		return fmt.Errorf("STEP_BASE_URL is required")
	}
	if c.StepToken == "" {
		return fmt.Errorf("STEP_AUTH_TOKEN is required")
	}
	if err := c.Selection.Validate(); err != nil {
		return err
	}
	if err := c.Gate.Validate(); err != nil {
		return err
	}
	return nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true":
		return true
	case "false":
		return false
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
