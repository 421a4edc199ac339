// Package config loads server configuration from YAML and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/validation-backend/pkg/types"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "validation"
)

// Config is the full server configuration
type Config struct {
	Environment string               `mapstructure:"environment"`
	Server      types.ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig        `mapstructure:"logging"`
	Data        DataConfig           `mapstructure:"data"`
	Defaults    ValidationDefaults   `mapstructure:"defaults"`
	Strategy    types.StrategyConfig `mapstructure:"strategy"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// DataConfig configures the historical data store
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// ValidationDefaults holds the per-operation settings applied when a
// request leaves them unset
type ValidationDefaults struct {
	MonteCarlo      types.MonteCarloConfig      `mapstructure:"monte_carlo"`
	Bootstrap       types.BootstrapConfig       `mapstructure:"bootstrap"`
	CrossValidation types.CrossValidationConfig `mapstructure:"cross_validation"`
	Regime          types.RegimeConfig          `mapstructure:"regime"`
	WalkForward     types.WalkForwardConfig     `mapstructure:"walk_forward"`
}

// Load reads the configuration file and merges environment variables
// over it. A missing file at the default path falls back to defaults;
// a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || strings.Contains(err.Error(), "no such file")
		if !missing {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if explicit {
			return nil, fmt.Errorf("config file %q not found: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &types.InvalidParameterError{Param: "server.port", Reason: "outside 1-65535"}
	}
	if c.Defaults.MonteCarlo.Trials <= 0 {
		return &types.InvalidParameterError{Param: "defaults.monte_carlo.trials", Reason: "must be positive"}
	}
	if f := c.Defaults.Bootstrap.Fraction; f <= 0 || f > 1 {
		return &types.InvalidParameterError{Param: "defaults.bootstrap.fraction", Reason: "must be in (0, 1]"}
	}
	if c.Defaults.CrossValidation.Folds < 2 {
		return &types.InvalidParameterError{Param: "defaults.cross_validation.folds", Reason: "must be at least 2"}
	}
	if c.Defaults.Regime.Window < 2 {
		return &types.InvalidParameterError{Param: "defaults.regime.window", Reason: "must be at least 2"}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.max_connections", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("data.dir", "data")

	v.SetDefault("defaults.monte_carlo.trials", 1000)
	v.SetDefault("defaults.monte_carlo.sampler", types.SamplerNormal)
	v.SetDefault("defaults.monte_carlo.block_size", 20)
	v.SetDefault("defaults.monte_carlo.degrees_freedom", 5)
	v.SetDefault("defaults.monte_carlo.periods_per_year", 252)

	v.SetDefault("defaults.bootstrap.samples", 1000)
	v.SetDefault("defaults.bootstrap.fraction", 1.0)
	v.SetDefault("defaults.bootstrap.periods_per_year", 252)

	v.SetDefault("defaults.cross_validation.folds", 5)
	v.SetDefault("defaults.cross_validation.method", string(types.MethodTimeSeries))
	v.SetDefault("defaults.cross_validation.periods_per_year", 252)

	v.SetDefault("defaults.regime.detector", "volatility")
	v.SetDefault("defaults.regime.window", 20)
	v.SetDefault("defaults.regime.min_segment_size", 10)

	v.SetDefault("defaults.walk_forward.initial_train_size", 252)
	v.SetDefault("defaults.walk_forward.retrain_frequency", 63)
	v.SetDefault("defaults.walk_forward.test_size", 63)
	v.SetDefault("defaults.walk_forward.periods_per_year", 252)

	v.SetDefault("strategy.name", "momentum")
	v.SetDefault("strategy.target_metric", "sharpe")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
