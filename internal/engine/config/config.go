package config

import (
	"time"

	pkgconfig "golang-prediction-engine/pkg/config"
)

// Config holds the full configuration for the prediction engine service.
type Config struct {
	App      pkgconfig.App      `mapstructure:"app"`
	Logger   pkgconfig.Logger   `mapstructure:"logger"`
	Database pkgconfig.Database `mapstructure:"database"`
	Redis    pkgconfig.Redis    `mapstructure:"redis"`
	API      pkgconfig.API      `mapstructure:"api"`
	Telegram pkgconfig.Telegram `mapstructure:"telegram"`
	Engine   Engine             `mapstructure:"engine"`
	Gemini   Gemini             `mapstructure:"gemini"`
}

// Engine holds pipeline tuning knobs.
type Engine struct {
	WorkerID                string        `mapstructure:"worker_id"`
	BatchSize               int           `mapstructure:"batch_size"`
	DetectionBatchSize      int           `mapstructure:"detection_batch_size"`
	ClaimTimeout            time.Duration `mapstructure:"claim_timeout"`
	SignalTTL               time.Duration `mapstructure:"signal_ttl"`
	PredictorTTL            time.Duration `mapstructure:"predictor_ttl"`
	MinPredictors           int           `mapstructure:"min_predictors"`
	MinCombinedStrength     float64       `mapstructure:"min_combined_strength"`
	MinConsensus            float64       `mapstructure:"min_consensus"`
	EscalationConfidence    float64       `mapstructure:"escalation_confidence"`
	EscalationAgreement     float64       `mapstructure:"escalation_agreement"`
	DefaultTimeframeHours   int           `mapstructure:"default_timeframe_hours"`
	BacktestWindowDays      int           `mapstructure:"backtest_window_days"`
	SweepSchedule           string        `mapstructure:"sweep_schedule"`
	DetectionSchedule       string        `mapstructure:"detection_schedule"`
	StaleClaimInterval      time.Duration `mapstructure:"stale_claim_interval"`
	ExpirySweepInterval     time.Duration `mapstructure:"expiry_sweep_interval"`
	StreamReadTimeout       time.Duration `mapstructure:"stream_read_timeout"`
	StreamMaxRetry          int           `mapstructure:"stream_max_retry"`
	StreamRetryInterval     time.Duration `mapstructure:"stream_retry_interval"`
	StreamMaxIdleDuration   time.Duration `mapstructure:"stream_max_idle_duration"`
	NotifyPredictionCreated bool          `mapstructure:"notify_prediction_created"`
	Universes               []string      `mapstructure:"universes"`
	Feeds                   []FeedTarget  `mapstructure:"feeds"`
}

// FeedTarget is one RSS source configured for signal detection.
type FeedTarget struct {
	TargetID   string `mapstructure:"target_id"`
	UniverseID string `mapstructure:"universe_id"`
	SourceID   string `mapstructure:"source_id"`
	FeedURL    string `mapstructure:"feed_url"`
}

// Gemini holds the assessment provider configuration.
type Gemini struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	BaseURL             string `mapstructure:"base_url"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute"`
	MaxTokenPerMinute   int    `mapstructure:"max_token_per_minute"`
}

// Load reads the engine configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := pkgconfig.Load(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.BatchSize == 0 {
		e.BatchSize = 20
	}
	if e.DetectionBatchSize == 0 {
		e.DetectionBatchSize = 100
	}
	if e.ClaimTimeout == 0 {
		e.ClaimTimeout = 30 * time.Minute
	}
	if e.SignalTTL == 0 {
		e.SignalTTL = 48 * time.Hour
	}
	if e.PredictorTTL == 0 {
		e.PredictorTTL = 24 * time.Hour
	}
	if e.MinPredictors == 0 {
		e.MinPredictors = 2
	}
	if e.MinCombinedStrength == 0 {
		e.MinCombinedStrength = 0.5
	}
	if e.MinConsensus == 0 {
		e.MinConsensus = 0.6
	}
	if e.EscalationConfidence == 0 {
		e.EscalationConfidence = 0.8
	}
	if e.EscalationAgreement == 0 {
		e.EscalationAgreement = 0.8
	}
	if e.DefaultTimeframeHours == 0 {
		e.DefaultTimeframeHours = 24
	}
	if e.BacktestWindowDays == 0 {
		e.BacktestWindowDays = 30
	}
	if e.StreamReadTimeout == 0 {
		e.StreamReadTimeout = 30 * time.Second
	}
	if e.StreamMaxRetry == 0 {
		e.StreamMaxRetry = 3
	}
	if e.StreamRetryInterval == 0 {
		e.StreamRetryInterval = time.Minute
	}
	if e.StreamMaxIdleDuration == 0 {
		e.StreamMaxIdleDuration = 5 * time.Minute
	}
	if e.StaleClaimInterval == 0 {
		e.StaleClaimInterval = 5 * time.Minute
	}
	if e.ExpirySweepInterval == 0 {
		e.ExpirySweepInterval = 15 * time.Minute
	}
}
