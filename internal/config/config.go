package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// RunConfig configures a generation run.
type RunConfig struct {
	Seed         uint64 `yaml:"seed" mapstructure:"seed"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
	SnapshotDate string `yaml:"snapshot_date" mapstructure:"snapshot_date"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	Format       string `yaml:"format" mapstructure:"format"`
}

// InputConfig points at the static inputs of a run.
type InputConfig struct {
	SimulationPath     string `yaml:"simulation_path" mapstructure:"simulation_path"`
	CustomersPath      string `yaml:"customers_path" mapstructure:"customers_path"`
	EnrichmentCacheDir string `yaml:"enrichment_cache_dir" mapstructure:"enrichment_cache_dir"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory is loaded into the environment first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dealgen.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("run.seed", 42)
	v.SetDefault("run.concurrency", 8)
	v.SetDefault("run.snapshot_date", "")
	v.SetDefault("run.output_dir", "data/raw")
	v.SetDefault("run.format", "csv")
	v.SetDefault("input.simulation_path", "")
	v.SetDefault("input.customers_path", "")
	v.SetDefault("input.enrichment_cache_dir", "")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 16)
	v.SetDefault("log.max_backups", 8)

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

// Validate checks the settings a command mode depends on. Modes are
// "generate" and "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres", "":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "generate":
		if c.Run.Concurrency < 1 || c.Run.Concurrency > 64 {
			errs = append(errs, "run.concurrency must be between 1 and 64")
		}
		switch c.Run.Format {
		case "csv", "json", "xlsx":
		default:
			errs = append(errs, "run.format must be csv, json or xlsx")
		}
		if c.Run.OutputDir == "" {
			errs = append(errs, "run.output_dir is required")
		}
		if c.Run.SnapshotDate != "" {
			if _, err := time.Parse(DateLayout, c.Run.SnapshotDate); err != nil {
				errs = append(errs, "run.snapshot_date must be YYYY-MM-DD")
			}
		}
	case "runs":
		if c.Store.Driver == "" {
			errs = append(errs, "store.driver is required")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SnapshotTime parses the optional run snapshot date. The zero time means no
// snapshot.
func (r RunConfig) SnapshotTime() (time.Time, error) {
	if r.SnapshotDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, r.SnapshotDate)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "config: parse run.snapshot_date")
	}
	return t, nil
}

// InitLogger initializes the global zap logger. Format "auto" selects the
// console encoder when stderr is a terminal. When File is set, log lines are
// also written to a size-rotated file.
func InitLogger(cfg LogConfig) error {
	format := cfg.Format
	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "console"
		}
	}

	var zapCfg zap.Config
	if format == "console" {
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

	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zapCfg.Level)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}
	zap.ReplaceGlobals(logger)

	return nil
}
