package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	JustETF JustETFConfig `yaml:"justetf" mapstructure:"justetf"`
	Firds   FirdsConfig   `yaml:"firds" mapstructure:"firds"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StorageConfig configures the snapshot store on disk.
type StorageConfig struct {
	BasePath string `yaml:"base_path" mapstructure:"base_path"`
}

// JustETFConfig configures profile page discovery and download.
type JustETFConfig struct {
	SitemapURL  string      `yaml:"sitemap_url" mapstructure:"sitemap_url"`
	RateSeconds float64     `yaml:"rate_seconds" mapstructure:"rate_seconds"`
	Cache       CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// CacheConfig configures the HTTP response cache.
type CacheConfig struct {
	Mode         string `yaml:"mode" mapstructure:"mode"`
	TTLHours     int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	BucketFormat string `yaml:"bucket_format" mapstructure:"bucket_format"`
	Path         string `yaml:"path" mapstructure:"path"`
}

// FirdsConfig configures the FCA FIRDS registry client.
type FirdsConfig struct {
	APIURL   string `yaml:"api_url" mapstructure:"api_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// HTTPConfig configures outbound HTTP behavior.
type HTTPConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.base_path", "data/snapshots")
	v.SetDefault("justetf.sitemap_url", "https://www.justetf.com/sitemap5.xml")
	v.SetDefault("justetf.rate_seconds", 2.0)
	v.SetDefault("justetf.cache.mode", "default")
	v.SetDefault("justetf.cache.ttl_hours", 24)
	v.SetDefault("justetf.cache.bucket_format", "")
	v.SetDefault("justetf.cache.path", "data/cache/responses.db")
	v.SetDefault("firds.api_url", "https://api.data.fca.org.uk/fca_data_firds_files")
	v.SetDefault("firds.page_size", 1000)
	v.SetDefault("http.user_agent", "refsnap/0.1 (+https://github.com/sells-group/refsnap)")
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("http.requests_per_second", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REFSNAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

// Default returns the configuration with every field at its default.
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal defaults")
	}
	return &cfg, nil
}

// WriteDefault writes the default configuration as YAML to path. Fails
// when a file already exists there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	cfg, err := Default()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	header := "# refsnap configuration.\n# Every value can be overridden with a REFSNAP_* environment variable,\n# e.g. REFSNAP_STORAGE_BASE_PATH or REFSNAP_LOG_LEVEL.\n"
	data = append([]byte(header), data...)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "config: create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "config: write %s", path)
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
