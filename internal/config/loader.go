package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults. CLI flags are applied by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("POSTHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("postharvest")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".postharvest"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("harvest.queries", cfg.Harvest.Queries)
	v.SetDefault("harvest.search_url", cfg.Harvest.SearchURL)
	v.SetDefault("harvest.max_scrolls", cfg.Harvest.MaxScrolls)
	v.SetDefault("harvest.settle_delay", cfg.Harvest.SettleDelay)
	v.SetDefault("harvest.query_pause", cfg.Harvest.QueryPause)
	v.SetDefault("harvest.output_dir", cfg.Harvest.OutputDir)
	v.SetDefault("harvest.date_tag", cfg.Harvest.DateTag)
	v.SetDefault("harvest.location", cfg.Harvest.Location)
	v.SetDefault("harvest.source", cfg.Harvest.Source)

	v.SetDefault("browser.control_url", cfg.Browser.ControlURL)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.navigate_timeout", cfg.Browser.NavigateTimeout)
	v.SetDefault("browser.load_attempts", cfg.Browser.LoadAttempts)
	v.SetDefault("browser.login_url", cfg.Browser.LoginURL)

	v.SetDefault("parser.post_selector", cfg.Parser.PostSelector)
	v.SetDefault("parser.link_base", cfg.Parser.LinkBase)
	v.SetDefault("parser.media_marker", cfg.Parser.MediaMarker)
	v.SetDefault("parser.title_length", cfg.Parser.TitleLength)

	v.SetDefault("media.workers", cfg.Media.Workers)
	v.SetDefault("media.timeout", cfg.Media.Timeout)
	v.SetDefault("media.max_size", cfg.Media.MaxSize)
	v.SetDefault("media.user_agent", cfg.Media.UserAgent)
	v.SetDefault("media.rate_limit", cfg.Media.RateLimit)

	v.SetDefault("storage.formats", cfg.Storage.Formats)
	v.SetDefault("storage.file_prefix", cfg.Storage.FilePrefix)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
