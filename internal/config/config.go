package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Spatial    SpatialConfig    `yaml:"spatial" mapstructure:"spatial"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Templates  TemplatesConfig  `yaml:"templates" mapstructure:"templates"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Load       LoadConfig       `yaml:"load" mapstructure:"load"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures run history persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SpatialConfig configures the PostGIS database holding the network layers.
type SpatialConfig struct {
	DatabaseURL          string  `yaml:"database_url" mapstructure:"database_url"`
	LayerSchema          string  `yaml:"layer_schema" mapstructure:"layer_schema"`
	ScratchPrefix        string  `yaml:"scratch_prefix" mapstructure:"scratch_prefix"`
	StatementTimeoutSecs int     `yaml:"statement_timeout_secs" mapstructure:"statement_timeout_secs"`
	EraseToleranceFt     float64 `yaml:"erase_tolerance_ft" mapstructure:"erase_tolerance_ft"`
	MaxConns             int32   `yaml:"max_conns" mapstructure:"max_conns"`
}

// OutputConfig configures where BOM workbooks land.
type OutputConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	Summary bool   `yaml:"summary" mapstructure:"summary"`
}

// TemplatesConfig maps each variant to its workbook template.
type TemplatesConfig struct {
	Clarity     string `yaml:"clarity" mapstructure:"clarity"`
	RDOF        string `yaml:"rdof" mapstructure:"rdof"`
	FortCollins string `yaml:"fortcollins" mapstructure:"fortcollins"`
	RoadMiles   string `yaml:"roadmiles" mapstructure:"roadmiles"`
}

// For returns the configured template for a variant, or "" if none.
func (t TemplatesConfig) For(variant string) string {
	switch variant {
	case "clarity":
		return t.Clarity
	case "rdof":
		return t.RDOF
	case "fortcollins":
		return t.FortCollins
	case "roadmiles":
		return t.RoadMiles
	default:
		return ""
	}
}

// FetchConfig configures downloads of the design export.
type FetchConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int    `yaml:"max_retries" mapstructure:"max_retries"`
	DestDir       string `yaml:"dest_dir" mapstructure:"dest_dir"`
	ArchivePrefix string `yaml:"archive_prefix" mapstructure:"archive_prefix"`
	RatePerSec    int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	// Region is the AWS region used for s3:// URLs.
	Region string `yaml:"region" mapstructure:"region"`
}

// LoadConfig configures the shapefile loader.
type LoadConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	SRID        int    `yaml:"srid" mapstructure:"srid"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinBoundaries        int     `yaml:"min_boundaries" mapstructure:"min_boundaries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EnvPrefix prefixes every environment override, e.g. FIBERBOM_OUTPUT_DIR.
const EnvPrefix = "FIBERBOM"

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fiber-bom.db")
	v.SetDefault("spatial.database_url", "")
	v.SetDefault("spatial.layer_schema", "layers")
	v.SetDefault("spatial.scratch_prefix", "bom_scratch")
	v.SetDefault("spatial.statement_timeout_secs", 120)
	v.SetDefault("spatial.erase_tolerance_ft", 1.5)
	v.SetDefault("spatial.max_conns", 4)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.summary", true)
	v.SetDefault("templates.clarity", "template/Clarity_BOM_Template.xlsx")
	v.SetDefault("templates.rdof", "template/RDOF_BOM_Template.xlsx")
	v.SetDefault("templates.fortcollins", "template/FortCollins_BOM_Template.xlsx")
	v.SetDefault("templates.roadmiles", "template/RoadMiles_Template.xlsx")
	v.SetDefault("fetch.url", "")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.dest_dir", "input")
	v.SetDefault("fetch.archive_prefix", "RDOF_Design")
	v.SetDefault("fetch.rate_per_sec", 2)
	v.SetDefault("fetch.region", "")
	v.SetDefault("load.dir", "input")
	v.SetDefault("load.srid", 4326)
	v.SetDefault("load.concurrency", 3)
	v.SetDefault("load.batch_size", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_boundaries", 5)
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

// Validate checks the settings a command needs before it touches anything.
// mode is the command name: generate, serve, load, fetch or runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	needSpatial := mode == "generate" || mode == "serve" || mode == "load"
	if needSpatial && c.Spatial.DatabaseURL == "" {
		errs = append(errs, "spatial.database_url is required")
	}
	if needSpatial && c.Spatial.LayerSchema == "" {
		errs = append(errs, "spatial.layer_schema is required")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres store")
	}

	switch mode {
	case "generate", "serve":
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
		if c.Spatial.ScratchPrefix == "" {
			errs = append(errs, "spatial.scratch_prefix is required")
		}
	case "fetch":
		if c.Fetch.DestDir == "" {
			errs = append(errs, "fetch.dest_dir is required")
		}
	case "load":
		if c.Load.Concurrency < 1 {
			errs = append(errs, "load.concurrency must be at least 1")
		}
	}
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
