package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Harvest.MaxScrolls < 0 {
		return fmt.Errorf("harvest.max_scrolls must be >= 0, got %d", cfg.Harvest.MaxScrolls)
	}
	if cfg.Harvest.SettleDelay < 0 {
		return fmt.Errorf("harvest.settle_delay must be >= 0")
	}
	if cfg.Harvest.QueryPause < 0 {
		return fmt.Errorf("harvest.query_pause must be >= 0")
	}
	if cfg.Harvest.OutputDir == "" {
		return fmt.Errorf("harvest.output_dir must be set")
	}
	if !strings.Contains(cfg.Harvest.SearchURL, "{query}") {
		return fmt.Errorf("harvest.search_url must contain the {query} placeholder, got %q", cfg.Harvest.SearchURL)
	}
	if err := ValidateURL(strings.ReplaceAll(cfg.Harvest.SearchURL, "{query}", "q")); err != nil {
		return fmt.Errorf("harvest.search_url: %w", err)
	}

	if cfg.Browser.NavigateTimeout <= 0 {
		return fmt.Errorf("browser.navigate_timeout must be > 0")
	}
	if cfg.Browser.LoadAttempts < 1 {
		return fmt.Errorf("browser.load_attempts must be >= 1, got %d", cfg.Browser.LoadAttempts)
	}

	if cfg.Parser.PostSelector == "" {
		return fmt.Errorf("parser.post_selector must be set")
	}
	if cfg.Parser.MediaMarker == "" {
		return fmt.Errorf("parser.media_marker must be set")
	}
	if cfg.Parser.TitleLength < 1 {
		return fmt.Errorf("parser.title_length must be >= 1, got %d", cfg.Parser.TitleLength)
	}
	if err := ValidateURL(cfg.Parser.LinkBase); err != nil {
		return fmt.Errorf("parser.link_base: %w", err)
	}

	if cfg.Media.Workers < 1 {
		return fmt.Errorf("media.workers must be >= 1, got %d", cfg.Media.Workers)
	}
	if cfg.Media.Workers > 256 {
		return fmt.Errorf("media.workers must be <= 256, got %d", cfg.Media.Workers)
	}
	if cfg.Media.Timeout <= 0 {
		return fmt.Errorf("media.timeout must be > 0")
	}
	if cfg.Media.MaxSize <= 0 {
		return fmt.Errorf("media.max_size must be > 0")
	}
	if cfg.Media.RateLimit < 0 {
		return fmt.Errorf("media.rate_limit must be >= 0")
	}

	validFormats := map[string]bool{
		"json": true, "jsonl": true, "csv": true,
	}
	for _, f := range cfg.Storage.Formats {
		if !validFormats[f] {
			return fmt.Errorf("storage format %q is not supported (valid: json, jsonl, csv)", f)
		}
	}
	if cfg.Storage.FilePrefix == "" {
		return fmt.Errorf("storage.file_prefix must be set")
	}
	if cfg.Storage.Mongo.URI != "" && (cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "") {
		return fmt.Errorf("storage.mongo needs database and collection when uri is set")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks that a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
