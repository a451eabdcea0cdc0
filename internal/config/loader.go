package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. QUICKSCOUT_POOL_WORKERS.
const EnvPrefix = "QUICKSCOUT"

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > site preset > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("quickscout")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".quickscout"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The preset decides the defaults for everything site specific, so it is
	// resolved before the remaining defaults are registered.
	cfg := DefaultConfig()
	if platform := v.GetString("site.platform"); platform != "" {
		if !ApplyPreset(cfg, platform) {
			cfg.Site.Platform = platform
		}
	}
	setDefaults(v, cfg)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Dump renders cfg as YAML.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// setDefaults registers default values in viper so env overrides resolve
// for every key, not only the ones present in a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("pool.workers", cfg.Pool.Workers)
	v.SetDefault("pool.stagger_min", cfg.Pool.StaggerMin)
	v.SetDefault("pool.stagger_max", cfg.Pool.StaggerMax)
	v.SetDefault("pool.checkpoint_path", cfg.Pool.CheckpointPath)
	v.SetDefault("pool.preflight", cfg.Pool.Preflight)

	v.SetDefault("browser.engine", cfg.Browser.Engine)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin_paths", cfg.Browser.BinPaths)
	v.SetDefault("browser.channels", cfg.Browser.Channels)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.user_agents", cfg.Browser.UserAgents)
	v.SetDefault("browser.block_resources", cfg.Browser.BlockResources)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.viewport_width", cfg.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", cfg.Browser.ViewportHeight)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)

	v.SetDefault("session.target_delay_min", cfg.Session.TargetDelayMin)
	v.SetDefault("session.target_delay_max", cfg.Session.TargetDelayMax)
	v.SetDefault("session.cooldown_min", cfg.Session.CooldownMin)
	v.SetDefault("session.cooldown_max", cfg.Session.CooldownMax)
	v.SetDefault("session.long_break_probability", cfg.Session.LongBreakProbability)
	v.SetDefault("session.long_break_min", cfg.Session.LongBreakMin)
	v.SetDefault("session.long_break_max", cfg.Session.LongBreakMax)
	v.SetDefault("session.settle_delay", cfg.Session.SettleDelay)
	v.SetDefault("session.capture_window", cfg.Session.CaptureWindow)
	v.SetDefault("session.scroll_steps", cfg.Session.ScrollSteps)
	v.SetDefault("session.scroll_pixels", cfg.Session.ScrollPixels)
	v.SetDefault("session.scroll_pause", cfg.Session.ScrollPause)
	v.SetDefault("session.block_statuses", cfg.Session.BlockStatuses)
	v.SetDefault("session.block_markers", cfg.Session.BlockMarkers)
	v.SetDefault("session.block_probe_script", cfg.Session.BlockProbeScript)
	v.SetDefault("session.capture_cache_size", cfg.Session.CaptureCacheSize)

	v.SetDefault("location.trigger_selectors", cfg.Location.TriggerSelectors)
	v.SetDefault("location.input_selectors", cfg.Location.InputSelectors)
	v.SetDefault("location.suggestion_selectors", cfg.Location.SuggestionSelectors)
	v.SetDefault("location.confirm_selectors", cfg.Location.ConfirmSelectors)
	v.SetDefault("location.eta_selectors", cfg.Location.ETASelectors)
	v.SetDefault("location.eta_pattern", cfg.Location.ETAPattern)
	v.SetDefault("location.selection_order", cfg.Location.SelectionOrder)
	v.SetDefault("location.step_timeout", cfg.Location.StepTimeout)
	v.SetDefault("location.suggestion_timeout", cfg.Location.SuggestionTimeout)
	v.SetDefault("location.confirmation_timeout", cfg.Location.ConfirmationTimeout)
	v.SetDefault("location.type_delay", cfg.Location.TypeDelay)
	v.SetDefault("location.max_suggestion_text", cfg.Location.MaxSuggestionText)

	v.SetDefault("fanout.enabled", cfg.Fanout.Enabled)
	v.SetDefault("fanout.concurrency", cfg.Fanout.Concurrency)
	v.SetDefault("fanout.discover_categories", cfg.Fanout.DiscoverCategories)
	v.SetDefault("fanout.max_categories", cfg.Fanout.MaxCategories)
	v.SetDefault("fanout.fast_path_strategies", cfg.Fanout.FastPathStrategies)

	v.SetDefault("extraction.strategies", cfg.Extraction.Strategies)
	v.SetDefault("extraction.capture_url_keywords", cfg.Extraction.CaptureURLKeywords)
	v.SetDefault("extraction.id_keys", cfg.Extraction.IDKeys)
	v.SetDefault("extraction.name_keys", cfg.Extraction.NameKeys)
	v.SetDefault("extraction.price_keys", cfg.Extraction.PriceKeys)
	v.SetDefault("extraction.mrp_keys", cfg.Extraction.MRPKeys)
	v.SetDefault("extraction.max_depth", cfg.Extraction.MaxDepth)
	v.SetDefault("extraction.max_nodes", cfg.Extraction.MaxNodes)
	v.SetDefault("extraction.price_in_minor_units", cfg.Extraction.PriceInMinorUnits)
	v.SetDefault("extraction.hydration_script", cfg.Extraction.HydrationScript)
	v.SetDefault("extraction.hydration_selector", cfg.Extraction.HydrationSelector)
	v.SetDefault("extraction.product_link_selector", cfg.Extraction.ProductLinkSelector)
	v.SetDefault("extraction.id_from_link_pattern", cfg.Extraction.IDFromLinkPattern)
	v.SetDefault("extraction.name_from_link_pattern", cfg.Extraction.NameFromLinkPattern)
	v.SetDefault("extraction.ancestor_levels", cfg.Extraction.AncestorLevels)
	v.SetDefault("extraction.regex_anchor", cfg.Extraction.RegexAnchor)

	v.SetDefault("site.platform", cfg.Site.Platform)
	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.product_url_template", cfg.Site.ProductURLTemplate)
	v.SetDefault("site.category_path_marker", cfg.Site.CategoryPathMarker)
	v.SetDefault("site.category_link_xpath", cfg.Site.CategoryLinkXPath)
	v.SetDefault("site.exclude_keywords", cfg.Site.ExcludeKeywords)
	v.SetDefault("site.default_categories", cfg.Site.DefaultCategories)

	v.SetDefault("storage.types", cfg.Storage.Types)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.chunk_size", cfg.Storage.ChunkSize)
	v.SetDefault("storage.destination", cfg.Storage.Destination)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.postgres.dsn", cfg.Storage.Postgres.DSN)
	v.SetDefault("storage.postgres.max_conns", cfg.Storage.Postgres.MaxConns)
	v.SetDefault("storage.redis.addr", cfg.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", cfg.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", cfg.Storage.Redis.DB)
	v.SetDefault("storage.redis.max_len", cfg.Storage.Redis.MaxLen)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
