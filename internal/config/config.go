package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the transcription job service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	StaticAssetsPath string

	ModelPath    string
	VADModelPath string
	DTWPreset    string

	MaxWorkers int

	DeviceConfig string

	VADThreshold     float64
	VADMinSilenceMs  int
	VADMinSpeechMs   int
	VADPadMs         int
	VADWindowSizeMs  int
	VADMaxSpeechSecs float64

	ResetMinNoSpeechMs int

	DatabaseURL     string
	FileStoragePath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "whisperpool"),
		AllowAnyOrigin:   false,
		StaticAssetsPath: envOrDefault("APP_STATIC_ASSETS_PATH", "web/static"),

		ModelPath:    envOrDefault("WHISPERPOOL_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		VADModelPath: envOrDefault("WHISPERPOOL_VAD_MODEL_PATH", ""),
		DTWPreset:    envOrDefault("WHISPERPOOL_DTW_PRESET", ""),

		MaxWorkers: 2,

		DeviceConfig: envOrDefault("WHISPERPOOL_DEVICE", ""),

		VADThreshold:     0.5,
		VADMinSilenceMs:  98,
		VADMinSpeechMs:   64,
		VADPadMs:         64,
		VADWindowSizeMs:  64,
		VADMaxSpeechSecs: 0,

		ResetMinNoSpeechMs: 10000,

		DatabaseURL:     stringsTrimSpace("DATABASE_URL"),
		FileStoragePath: envOrDefault("WHISPERPOOL_FILE_STORAGE_PATH", "files"),

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxWorkers, err = intFromEnv("WHISPERPOOL_MAX_WORKERS", cfg.MaxWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.VADThreshold, err = floatFromEnv("WHISPERPOOL_VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VADMinSilenceMs, err = intFromEnv("WHISPERPOOL_VAD_MIN_SILENCE_MS", cfg.VADMinSilenceMs)
	if err != nil {
		return Config{}, err
	}
	cfg.VADMinSpeechMs, err = intFromEnv("WHISPERPOOL_VAD_MIN_SPEECH_MS", cfg.VADMinSpeechMs)
	if err != nil {
		return Config{}, err
	}
	cfg.VADPadMs, err = intFromEnv("WHISPERPOOL_VAD_PAD_MS", cfg.VADPadMs)
	if err != nil {
		return Config{}, err
	}
	cfg.VADWindowSizeMs, err = intFromEnv("WHISPERPOOL_VAD_WINDOW_SIZE_MS", cfg.VADWindowSizeMs)
	if err != nil {
		return Config{}, err
	}
	cfg.VADMaxSpeechSecs, err = floatFromEnv("WHISPERPOOL_VAD_MAX_SPEECH_SECONDS", cfg.VADMaxSpeechSecs)
	if err != nil {
		return Config{}, err
	}
	cfg.ResetMinNoSpeechMs, err = intFromEnv("WHISPERPOOL_RESET_MIN_NOSPEECH_MS", cfg.ResetMinNoSpeechMs)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxWorkers <= 0 {
		return Config{}, fmt.Errorf("WHISPERPOOL_MAX_WORKERS must be positive")
	}
	if cfg.VADThreshold <= 0 || cfg.VADThreshold >= 1 {
		return Config{}, fmt.Errorf("WHISPERPOOL_VAD_THRESHOLD must be in (0, 1)")
	}
	if cfg.VADMinSilenceMs < 0 || cfg.VADMinSpeechMs < 0 || cfg.VADPadMs < 0 || cfg.VADWindowSizeMs <= 0 {
		return Config{}, fmt.Errorf("WHISPERPOOL_VAD_* durations must be non-negative (window size must be positive)")
	}
	if cfg.ResetMinNoSpeechMs < 0 {
		return Config{}, fmt.Errorf("WHISPERPOOL_RESET_MIN_NOSPEECH_MS must be non-negative")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
