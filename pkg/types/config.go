// Package types provides configuration types for the validation backend.
package types

import "time"

// Sampling families for Monte Carlo path generation
const (
	SamplerNormal         = "normal"
	SamplerStudentT       = "student_t"
	SamplerBlockBootstrap = "block"
)

// MonteCarloConfig configures Monte Carlo path simulation
type MonteCarloConfig struct {
	Trials         int    `json:"trials" mapstructure:"trials"`
	Seed           int64  `json:"seed" mapstructure:"seed"`
	Sampler        string `json:"sampler" mapstructure:"sampler"`
	BlockSize      int    `json:"blockSize" mapstructure:"block_size"`
	DegreesFreedom int    `json:"degreesFreedom" mapstructure:"degrees_freedom"`
	Workers        int    `json:"workers" mapstructure:"workers"`
	PeriodsPerYear int    `json:"periodsPerYear" mapstructure:"periods_per_year"`
}

// BootstrapConfig configures i.i.d. bootstrap resampling
type BootstrapConfig struct {
	Samples        int     `json:"samples" mapstructure:"samples"`
	Fraction       float64 `json:"fraction" mapstructure:"fraction"` // (0, 1]
	Seed           int64   `json:"seed" mapstructure:"seed"`
	Workers        int     `json:"workers" mapstructure:"workers"`
	PeriodsPerYear int     `json:"periodsPerYear" mapstructure:"periods_per_year"`
}

// CrossValidationMethod selects the fold construction strategy
type CrossValidationMethod string

const (
	// MethodTimeSeries grows the training window monotonically; the test
	// window always follows it, so there is no look-ahead leakage.
	MethodTimeSeries CrossValidationMethod = "time_series"
	// MethodKFold trains on all rows outside the test fold, including rows
	// chronologically after it. Leakage-permissive; only suitable for
	// non-temporal validation.
	MethodKFold CrossValidationMethod = "k_fold"
)

// CrossValidationConfig configures fold construction
type CrossValidationConfig struct {
	Folds          int                   `json:"folds" mapstructure:"folds"`
	Method         CrossValidationMethod `json:"method" mapstructure:"method"`
	Workers        int                   `json:"workers" mapstructure:"workers"`
	PeriodsPerYear int                   `json:"periodsPerYear" mapstructure:"periods_per_year"`
}

// RegimeConfig configures regime segmentation
type RegimeConfig struct {
	Detector       string `json:"detector" mapstructure:"detector"` // "volatility", "trend"
	Window         int    `json:"window" mapstructure:"window"`
	MinSegmentSize int    `json:"minSegmentSize" mapstructure:"min_segment_size"`
	Contiguous     bool   `json:"contiguous" mapstructure:"contiguous"`
}

// WalkForwardConfig configures the rolling train/optimize/test cycle
type WalkForwardConfig struct {
	InitialTrainSize int `json:"initialTrainSize" mapstructure:"initial_train_size"`
	RetrainFrequency int `json:"retrainFrequency" mapstructure:"retrain_frequency"`
	TestSize         int `json:"testSize" mapstructure:"test_size"`
	Workers          int `json:"workers" mapstructure:"workers"`
	PeriodsPerYear   int `json:"periodsPerYear" mapstructure:"periods_per_year"`
}

// ParamRange describes one axis of a strategy parameter search space
type ParamRange struct {
	Name    string  `json:"name" mapstructure:"name"`
	Min     float64 `json:"min" mapstructure:"min"`
	Max     float64 `json:"max" mapstructure:"max"`
	Step    float64 `json:"step" mapstructure:"step"`
	Default float64 `json:"default" mapstructure:"default"`
}

// StrategyConfig describes the strategy under validation and its search space
type StrategyConfig struct {
	Name         string       `json:"name" mapstructure:"name"`
	Params       Params       `json:"params" mapstructure:"params"`
	SearchSpace  []ParamRange `json:"searchSpace" mapstructure:"search_space"`
	TargetMetric string       `json:"targetMetric" mapstructure:"target_metric"` // default "sharpe"
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	WebSocketPath  string        `json:"websocketPath" mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	EnableMetrics  bool          `json:"enableMetrics" mapstructure:"enable_metrics"`
	MetricsPort    int           `json:"metricsPort" mapstructure:"metrics_port"`
	MaxConnections int           `json:"maxConnections" mapstructure:"max_connections"`
}
