// Package config loads typed configuration for the coordinator and worker
// processes from the environment via envconfig.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// CoordinatorConfig holds everything the Coordinator (§4.4) needs for one run.
// Environment variables are prefixed TIPS_COORDINATOR.
type CoordinatorConfig struct {
	PostgresDSN string `envconfig:"DATABASE_URL" required:"true"`
	WaviateURL  string `envconfig:"WAVIATE_URL" default:"localhost:8080"`

	WorkerBaseURL string `envconfig:"WORKER_BASE_URL" default:"http://localhost:8001"`
	WorkerMAC     string `envconfig:"WORKER_MAC"`
	WorkerIP      string `envconfig:"WORKER_IP"`

	WakeEnabled bool `envconfig:"WAKE_ENABLED" default:"true"`

	BatchSize             int `envconfig:"BATCH_SIZE" default:"20"`
	Fanout                int `envconfig:"FANOUT" default:"4"`
	PerRunLimit           int `envconfig:"PER_RUN_LIMIT" default:"100"`
	RequestTimeoutSec     int `envconfig:"REQUEST_TIMEOUT_SEC" default:"120"`
	MaxAttemptsPerBatch   int `envconfig:"MAX_ATTEMPTS_PER_BATCH" default:"3"`
	ShutdownGraceSec      int `envconfig:"SHUTDOWN_GRACE_SEC" default:"30"`

	SimilarityThreshold float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.85"`
	MinMentions         int     `envconfig:"MIN_MENTIONS" default:"3"`

	TargetLanguage string `envconfig:"TARGET_LANGUAGE" default:"eng_Latn"`
}

// RequestTimeout returns RequestTimeoutSec as a time.Duration.
func (c *CoordinatorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ShutdownGrace returns ShutdownGraceSec as a time.Duration.
func (c *CoordinatorConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}

// Validate enforces the invariants the Coordinator algorithm relies on.
func (c *CoordinatorConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("FANOUT must be positive, got %d", c.Fanout)
	}
	if c.PerRunLimit < 0 {
		return fmt.Errorf("PER_RUN_LIMIT must be non-negative, got %d", c.PerRunLimit)
	}
	if c.MaxAttemptsPerBatch <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS_PER_BATCH must be positive, got %d", c.MaxAttemptsPerBatch)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0,1], got %f", c.SimilarityThreshold)
	}
	if c.MinMentions < 1 {
		return fmt.Errorf("MIN_MENTIONS must be at least 1, got %d", c.MinMentions)
	}
	if c.WakeEnabled && (c.WorkerMAC == "" || c.WorkerIP == "") {
		return fmt.Errorf("WORKER_MAC and WORKER_IP are required when WAKE_ENABLED=true")
	}
	return nil
}

// WorkerConfig holds everything the Processing Worker (§4.3) needs at startup.
// Environment variables are prefixed TIPS_WORKER.
type WorkerConfig struct {
	HTTPPort       int    `envconfig:"HTTP_PORT" default:"8001"`
	TargetLanguage string `envconfig:"TARGET_LANGUAGE" default:"eng_Latn"`

	// WorkerPoolSize documents the intended sibling-process pool (§4.3.1); the
	// process itself never reads it to fork — deployment tooling does.
	WorkerPoolSize int `envconfig:"WORKER_POOL_SIZE" default:"1"`
}

// NewCoordinatorConfig parses TIPS_COORDINATOR_* environment variables.
func NewCoordinatorConfig() (*CoordinatorConfig, error) {
	var cfg CoordinatorConfig
	if err := envconfig.Process("TIPS_COORDINATOR", &cfg); err != nil {
		return nil, fmt.Errorf("parse coordinator config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate coordinator config: %w", err)
	}
	log.Info().
		Str("worker_base_url", cfg.WorkerBaseURL).
		Bool("wake_enabled", cfg.WakeEnabled).
		Int("batch_size", cfg.BatchSize).
		Int("fanout", cfg.Fanout).
		Int("per_run_limit", cfg.PerRunLimit).
		Float64("similarity_threshold", cfg.SimilarityThreshold).
		Int("min_mentions", cfg.MinMentions).
		Str("target_language", cfg.TargetLanguage).
		Msg("coordinator configuration loaded")
	return &cfg, nil
}

// NewWorkerConfig parses TIPS_WORKER_* environment variables.
func NewWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process("TIPS_WORKER", &cfg); err != nil {
		return nil, fmt.Errorf("parse worker config: %w", err)
	}
	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("target_language", cfg.TargetLanguage).
		Int("worker_pool_size", cfg.WorkerPoolSize).
		Msg("worker configuration loaded")
	return &cfg, nil
}
