package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for postharvest.
type Config struct {
	Harvest HarvestConfig `mapstructure:"harvest" yaml:"harvest"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Parser  ParserConfig  `mapstructure:"parser"  yaml:"parser"`
	Media   MediaConfig   `mapstructure:"media"   yaml:"media"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// HarvestConfig controls the per-query scroll loop and run layout.
type HarvestConfig struct {
	Queries     []string      `mapstructure:"queries"      yaml:"queries"`
	SearchURL   string        `mapstructure:"search_url"   yaml:"search_url"` // {query} is replaced
	MaxScrolls  int           `mapstructure:"max_scrolls"  yaml:"max_scrolls"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	QueryPause  time.Duration `mapstructure:"query_pause"  yaml:"query_pause"`
	OutputDir   string        `mapstructure:"output_dir"   yaml:"output_dir"`
	DateTag     string        `mapstructure:"date_tag"     yaml:"date_tag"`
	Location    string        `mapstructure:"location"     yaml:"location"`
	Source      string        `mapstructure:"source"       yaml:"source"`
}

// BrowserConfig controls the headless browser used as the render source.
type BrowserConfig struct {
	ControlURL      string        `mapstructure:"control_url"      yaml:"control_url"`
	Bin             string        `mapstructure:"bin"              yaml:"bin"`
	Headless        bool          `mapstructure:"headless"         yaml:"headless"`
	UserDataDir     string        `mapstructure:"user_data_dir"    yaml:"user_data_dir"`
	Stealth         bool          `mapstructure:"stealth"          yaml:"stealth"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
	LoadAttempts    int           `mapstructure:"load_attempts"    yaml:"load_attempts"`
	LoginURL        string        `mapstructure:"login_url"        yaml:"login_url"`
}

// ParserConfig controls post block splitting and field extraction.
type ParserConfig struct {
	PostSelector string `mapstructure:"post_selector" yaml:"post_selector"`
	LinkBase     string `mapstructure:"link_base"     yaml:"link_base"`
	MediaMarker  string `mapstructure:"media_marker"  yaml:"media_marker"`
	TitleLength  int    `mapstructure:"title_length"  yaml:"title_length"`
}

// MediaConfig controls the image downloader.
type MediaConfig struct {
	Workers   int           `mapstructure:"workers"    yaml:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout"`
	MaxSize   int64         `mapstructure:"max_size"   yaml:"max_size"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests/sec, 0 = unlimited
}

// StorageConfig controls the export adapters.
type StorageConfig struct {
	Formats    []string    `mapstructure:"formats"     yaml:"formats"`
	FilePrefix string      `mapstructure:"file_prefix" yaml:"file_prefix"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig enables the optional MongoDB sink when URI is set.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			SearchURL:   "https://x.com/search?q={query}&src=typed_query&f=live",
			MaxScrolls:  30,
			SettleDelay: 5 * time.Second,
			QueryPause:  10 * time.Second,
			OutputDir:   "./results",
			Location:    "Manchester",
			Source:      "Twitter",
		},
		Browser: BrowserConfig{
			Headless:        true,
			Stealth:         true,
			NavigateTimeout: 60 * time.Second,
			LoadAttempts:    3,
			LoginURL:        "https://x.com/login",
		},
		Parser: ParserConfig{
			PostSelector: `article[role="article"]`,
			LinkBase:     "https://x.com",
			MediaMarker:  "format=jpg",
			TitleLength:  50,
		},
		Media: MediaConfig{
			Workers:   8,
			Timeout:   30 * time.Second,
			MaxSize:   20 * 1024 * 1024, // 20MB
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Storage: StorageConfig{
			Formats:    []string{"json", "csv"},
			FilePrefix: "tweets",
			Mongo: MongoConfig{
				Database:   "postharvest",
				Collection: "posts",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// RunDateTag returns the configured date tag, or MMDD of now.
func (c *HarvestConfig) RunDateTag(now time.Time) string {
	if c.DateTag != "" {
		return c.DateTag
	}
	return now.Format("0102")
}
