package config

import (
	"fmt"
	"net/url"
	"regexp"
)

var (
	validEngines     = map[string]bool{"rod": true, "playwright": true}
	validStrategies  = map[string]bool{"network": true, "hydration": true, "dom": true, "regex": true, "jsonld": true}
	validSelections  = map[string]bool{"suggestion": true, "confirm": true, "enter": true}
	validStorageType = map[string]bool{"csv": true, "jsonl": true, "mongo": true, "postgres": true, "redis": true}
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers must be >= 1, got %d", cfg.Pool.Workers)
	}
	if cfg.Pool.Workers > 64 {
		return fmt.Errorf("pool.workers must be <= 64, got %d", cfg.Pool.Workers)
	}
	if cfg.Pool.StaggerMin < 0 || cfg.Pool.StaggerMax < cfg.Pool.StaggerMin {
		return fmt.Errorf("pool.stagger_min must be >= 0 and <= pool.stagger_max")
	}

	if !validEngines[cfg.Browser.Engine] {
		return fmt.Errorf("browser.engine must be 'rod' or 'playwright', got %q", cfg.Browser.Engine)
	}
	if cfg.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Session.TargetDelayMin < 0 || cfg.Session.TargetDelayMax < cfg.Session.TargetDelayMin {
		return fmt.Errorf("session.target_delay_min must be >= 0 and <= session.target_delay_max")
	}
	if cfg.Session.CooldownMin < 0 || cfg.Session.CooldownMax < cfg.Session.CooldownMin {
		return fmt.Errorf("session.cooldown_min must be >= 0 and <= session.cooldown_max")
	}
	if cfg.Session.LongBreakProbability < 0 || cfg.Session.LongBreakProbability > 1 {
		return fmt.Errorf("session.long_break_probability must be within [0, 1], got %v", cfg.Session.LongBreakProbability)
	}
	if cfg.Session.LongBreakMax < cfg.Session.LongBreakMin {
		return fmt.Errorf("session.long_break_min must be <= session.long_break_max")
	}

	if len(cfg.Location.InputSelectors) == 0 {
		return fmt.Errorf("location.input_selectors must not be empty")
	}
	if len(cfg.Location.SelectionOrder) == 0 {
		return fmt.Errorf("location.selection_order must not be empty")
	}
	for _, s := range cfg.Location.SelectionOrder {
		if !validSelections[s] {
			return fmt.Errorf("location.selection_order entry %q must be suggestion, confirm or enter", s)
		}
	}
	if cfg.Location.StepTimeout <= 0 {
		return fmt.Errorf("location.step_timeout must be > 0")
	}
	if _, err := regexp.Compile(cfg.Location.ETAPattern); err != nil {
		return fmt.Errorf("location.eta_pattern must be a valid regexp: %w", err)
	}

	if cfg.Fanout.Concurrency < 1 {
		return fmt.Errorf("fanout.concurrency must be >= 1, got %d", cfg.Fanout.Concurrency)
	}
	if cfg.Fanout.MaxCategories < 0 {
		return fmt.Errorf("fanout.max_categories must be >= 0, got %d", cfg.Fanout.MaxCategories)
	}
	for _, s := range cfg.Fanout.FastPathStrategies {
		if !validStrategies[s] {
			return fmt.Errorf("fanout.fast_path_strategies entry %q is not a known strategy", s)
		}
	}

	if len(cfg.Extraction.Strategies) == 0 {
		return fmt.Errorf("extraction.strategies must not be empty")
	}
	for _, s := range cfg.Extraction.Strategies {
		if !validStrategies[s] {
			return fmt.Errorf("extraction.strategies entry %q is not a known strategy", s)
		}
	}
	if cfg.Extraction.MaxDepth < 1 {
		return fmt.Errorf("extraction.max_depth must be >= 1, got %d", cfg.Extraction.MaxDepth)
	}
	if len(cfg.Extraction.IDKeys) == 0 || len(cfg.Extraction.NameKeys) == 0 || len(cfg.Extraction.PriceKeys) == 0 {
		return fmt.Errorf("extraction.id_keys, name_keys and price_keys must not be empty")
	}
	for name, pattern := range map[string]string{
		"extraction.id_from_link_pattern":   cfg.Extraction.IDFromLinkPattern,
		"extraction.name_from_link_pattern": cfg.Extraction.NameFromLinkPattern,
		"extraction.regex_anchor":           cfg.Extraction.RegexAnchor,
	} {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s must be a valid regexp: %w", name, err)
		}
	}

	if err := ValidateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}

	if len(cfg.Storage.Types) == 0 {
		return fmt.Errorf("storage.types must not be empty")
	}
	for _, t := range cfg.Storage.Types {
		if !validStorageType[t] {
			return fmt.Errorf("storage.types entry %q is not supported (valid: csv, jsonl, mongo, postgres, redis)", t)
		}
		if t == "postgres" && cfg.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set when postgres storage is enabled")
		}
	}
	if cfg.Storage.ChunkSize < 1 {
		return fmt.Errorf("storage.chunk_size must be >= 1, got %d", cfg.Storage.ChunkSize)
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

// ValidateURL checks that a URL is an absolute http(s) URL.
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
