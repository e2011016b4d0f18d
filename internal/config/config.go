package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TempDir       string `json:"temp_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Telegram      struct {
		Token       string `json:"token"`
		PollTimeout int    `json:"poll_timeout"`
	} `json:"telegram"`
	HTTP struct {
		Enabled  bool   `json:"enabled"`
		Listen   string `json:"listen"`
		DebugAPI bool   `json:"debug_api"`
	} `json:"http"`
	Merge struct {
		FFmpegPath      string `json:"ffmpeg_path"`
		FFprobePath     string `json:"ffprobe_path"`
		VideoCodec      string `json:"video_codec"`
		AudioCodec      string `json:"audio_codec"`
		JPEGQuality     int    `json:"jpeg_quality"`
		TimeoutSeconds  int    `json:"timeout_seconds"`
		MaxImagePixels  int64  `json:"max_image_pixels"`
		MaxCanvasPixels int64  `json:"max_canvas_pixels"`
	} `json:"merge"`
	Janitor struct {
		Schedule string `json:"schedule"`
		IdleTTL  string `json:"idle_ttl"`
	} `json:"janitor"`
}

// placeholderTokens are values shipped in sample env files.
var placeholderTokens = map[string]bool{
	"YOUR_BOT_TOKEN":          true,
	"YOUR_TELEGRAM_BOT_TOKEN": true,
	"YOUR_BOT_TOKEN_HERE":     true,
	"TELEGRAM_BOT_TOKEN":      true,
	"<telegram-bot-token>":    true,
	"changeme":                true,
	"123456:ABC-DEF1234ghIkl": true,
}

// DefaultDir is the directory holding the default config file and staging root.
func DefaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".stitchbot")
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.json")
}

func defaults() *Config {
	cfg := &Config{
		TempDir:       filepath.Join(DefaultDir(), "staging"),
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Telegram.PollTimeout = 30
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8080"
	cfg.Merge.FFmpegPath = "ffmpeg"
	cfg.Merge.FFprobePath = "ffprobe"
	cfg.Merge.VideoCodec = "libx264"
	cfg.Merge.AudioCodec = "aac"
	cfg.Merge.JPEGQuality = 90
	cfg.Merge.TimeoutSeconds = 600
	cfg.Merge.MaxImagePixels = 40_000_000
	cfg.Merge.MaxCanvasPixels = 120_000_000
	cfg.Janitor.Schedule = "@every 10m"
	cfg.Janitor.IdleTTL = "24h"
	return cfg
}

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides file values from the environment (highest precedence).
func applyEnv(cfg *Config) {
	if tok := firstEnv("TELEGRAM_BOT_TOKEN", "BOT_TOKEN"); tok != "" {
		cfg.Telegram.Token = tok
	}
	if dir := firstEnv("STITCHBOT_TEMP_DIR", "TEMP_DIR"); dir != "" {
		cfg.TempDir = dir
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Listen = ":" + port
	}
	if lvl := os.Getenv("STITCHBOT_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports the first setting that would stop the bot from running.
func (c *Config) Validate() error {
	tok := strings.TrimSpace(c.Telegram.Token)
	if tok == "" {
		return errors.New("telegram.token is not set (config file, TELEGRAM_BOT_TOKEN or BOT_TOKEN)")
	}
	if IsPlaceholderToken(tok) {
		return errors.New("telegram.token still holds a placeholder value")
	}
	if strings.TrimSpace(c.TempDir) == "" {
		return errors.New("temp_dir is not set")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if q := c.Merge.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("merge.jpeg_quality must be between 1 and 100, got %d", q)
	}
	if c.Merge.MaxImagePixels < 0 || c.Merge.MaxCanvasPixels < 0 {
		return errors.New("merge.max_image_pixels and merge.max_canvas_pixels must not be negative")
	}
	if _, err := c.IdleTTL(); err != nil {
		return err
	}
	return nil
}

// IsPlaceholderToken reports whether tok looks like an unfilled sample value.
func IsPlaceholderToken(tok string) bool {
	if placeholderTokens[tok] {
		return true
	}
	upper := strings.ToUpper(tok)
	return len(tok) < 20 && (strings.Contains(upper, "TOKEN") || strings.Contains(upper, "YOUR_"))
}

// IdleTTL parses janitor.idle_ttl.
func (c *Config) IdleTTL() (time.Duration, error) {
	if c.Janitor.IdleTTL == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Janitor.IdleTTL)
	if err != nil {
		return 0, fmt.Errorf("janitor.idle_ttl: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("janitor.idle_ttl must be positive, got %s", d)
	}
	return d, nil
}

// MergeTimeout is merge.timeout_seconds as a duration. Zero disables it.
func (c *Config) MergeTimeout() time.Duration {
	if c.Merge.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Merge.TimeoutSeconds) * time.Second
}

func writeDefaults(path string, cfg *Config) error {
	return Save(path, cfg)
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored in the file at path for a dot-separated
// key. A missing file is created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaults(path, defaults()); err != nil {
			return nil, err
		}
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := lookupPath(m, key)
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key in an existing config file.
// Only keys the Config struct knows are accepted. Values that parse as JSON
// (numbers, booleans) keep their type; anything else is stored as a string.
func SetValue(path, key, value string) error {
	if !KnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	if _, isMap := parsed.(map[string]any); isMap {
		parsed = value
	}
	if err := setPath(m, key, parsed); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}
