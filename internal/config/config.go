package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Region  RegionConfig  `yaml:"region" mapstructure:"region"`
	Grid    GridConfig    `yaml:"grid" mapstructure:"grid"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Risk    RiskConfig    `yaml:"risk" mapstructure:"risk"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Trainer TrainerConfig `yaml:"trainer" mapstructure:"trainer"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// RegionConfig bounds the scored region. Defaults cover the Capital Region
// (Albany, NY area).
type RegionConfig struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// GridConfig configures the spatial tessellation.
type GridConfig struct {
	CellSizeMiles float64 `yaml:"cell_size_miles" mapstructure:"cell_size_miles"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RiskConfig configures scoring behavior.
type RiskConfig struct {
	WeightsFile    string  `yaml:"weights_file" mapstructure:"weights_file"`
	BaseConfidence float64 `yaml:"base_confidence" mapstructure:"base_confidence"`
	DefaultRadius  float64 `yaml:"default_radius_miles" mapstructure:"default_radius_miles"`
}

// EnrichConfig configures the Overpass POI enrichment job.
type EnrichConfig struct {
	OverpassURL    string  `yaml:"overpass_url" mapstructure:"overpass_url"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SubwayPadMiles float64 `yaml:"subway_pad_miles" mapstructure:"subway_pad_miles"`
}

// TrainerConfig configures offline model fitting.
type TrainerConfig struct {
	Iterations   int     `yaml:"iterations" mapstructure:"iterations"`
	LearningRate float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	L2Penalty    float64 `yaml:"l2_penalty" mapstructure:"l2_penalty"`
}

// ServerConfig configures the HTTP query boundary.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RISKMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("region.min_lat", 42.5)
	v.SetDefault("region.max_lat", 42.9)
	v.SetDefault("region.min_lon", -74.1)
	v.SetDefault("region.max_lon", -73.5)
	v.SetDefault("grid.cell_size_miles", 0.25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "riskmap.db")
	v.SetDefault("risk.weights_file", "")
	v.SetDefault("risk.base_confidence", 0.75)
	v.SetDefault("risk.default_radius_miles", 1.0)
	v.SetDefault("enrich.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("enrich.rate_per_second", 1.0)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.timeout_secs", 60)
	v.SetDefault("enrich.subway_pad_miles", 5.0)
	v.SetDefault("trainer.iterations", 2000)
	v.SetDefault("trainer.learning_rate", 0.1)
	v.SetDefault("trainer.l2_penalty", 0.001)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
