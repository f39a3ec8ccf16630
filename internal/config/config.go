// Package config loads application configuration from file and environment
// and owns global logger setup.
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
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Tiles   TilesConfig   `yaml:"tiles" mapstructure:"tiles"`
	Serve   ServeConfig   `yaml:"serve" mapstructure:"serve"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StorageConfig configures the S3-compatible object store. Empty credentials
// mean anonymous access, which is enough for public buckets.
type StorageConfig struct {
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	Region       string `yaml:"region" mapstructure:"region"`
	AccessKey    string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey    string `yaml:"secret_key" mapstructure:"secret_key"`
	Insecure     bool   `yaml:"insecure" mapstructure:"insecure"`
	FetchTimeout int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FetchPerSec  int    `yaml:"fetch_per_sec" mapstructure:"fetch_per_sec"`
}

// CatalogConfig configures the catalog build.
type CatalogConfig struct {
	Prefix       string  `yaml:"prefix" mapstructure:"prefix"`
	CoreKey      string  `yaml:"core_key" mapstructure:"core_key"`
	ExtractKey   string  `yaml:"extract_key" mapstructure:"extract_key"`
	SimplifyM    float64 `yaml:"simplify_m" mapstructure:"simplify_m"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxErrorsLog int     `yaml:"max_errors_logged" mapstructure:"max_errors_logged"`
}

// TilesConfig configures the tile build.
type TilesConfig struct {
	LayerName      string `yaml:"layer_name" mapstructure:"layer_name"`
	MinZoom        int    `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom        int    `yaml:"max_zoom" mapstructure:"max_zoom"`
	TippecanoePath string `yaml:"tippecanoe_path" mapstructure:"tippecanoe_path"`
	UploadPrefix   string `yaml:"upload_prefix" mapstructure:"upload_prefix"`
}

// ServeConfig configures the local tile server.
type ServeConfig struct {
	Port         int `yaml:"port" mapstructure:"port"`
	CacheSize    int `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields the given command actually uses. Bad
// configuration is fatal before anything is fetched or published.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Storage.Bucket == "" {
		problems = append(problems, "storage.bucket is required")
	}
	if c.Catalog.Concurrency < 1 || c.Catalog.Concurrency > 64 {
		problems = append(problems, "catalog.concurrency must be between 1 and 64")
	}

	switch mode {
	case "build":
		if c.Catalog.Prefix == "" {
			problems = append(problems, "catalog.prefix is required")
		}
		if c.Catalog.SimplifyM < 0 {
			problems = append(problems, "catalog.simplify_m must be >= 0")
		}
	case "tiles":
		if c.Tiles.MinZoom < 0 || c.Tiles.MaxZoom > 22 || c.Tiles.MinZoom > c.Tiles.MaxZoom {
			problems = append(problems, "tiles zoom range must satisfy 0 <= min_zoom <= max_zoom <= 22")
		}
		if c.Tiles.LayerName == "" {
			problems = append(problems, "tiles.layer_name is required")
		}
	case "serve":
		if c.Serve.Port <= 0 {
			problems = append(problems, "serve.port must be > 0")
		}
		if c.Serve.CacheSize < 1 {
			problems = append(problems, "serve.cache_size must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIMCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("storage.bucket", "sdmlab")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.fetch_timeout_secs", 30)
	v.SetDefault("storage.fetch_per_sec", 50)
	v.SetDefault("catalog.prefix", "FIM_Database/")
	v.SetDefault("catalog.core_key", "FIM_Database/catalog_core.json")
	v.SetDefault("catalog.extract_key", "FIM_Database/FIM_extents.geojson")
	v.SetDefault("catalog.simplify_m", 100)
	v.SetDefault("catalog.concurrency", 8)
	v.SetDefault("catalog.max_errors_logged", 5)
	v.SetDefault("tiles.layer_name", "fim_extents")
	v.SetDefault("tiles.min_zoom", 3)
	v.SetDefault("tiles.max_zoom", 14)
	v.SetDefault("tiles.tippecanoe_path", "tippecanoe")
	v.SetDefault("tiles.upload_prefix", "FIM_Database/FIM_Viz")
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.cache_size", 512)
	v.SetDefault("serve.cache_ttl_secs", 300)
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
