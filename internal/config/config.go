package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for quickscout.
type Config struct {
	Pool       PoolConfig       `mapstructure:"pool"       yaml:"pool"`
	Browser    BrowserConfig    `mapstructure:"browser"    yaml:"browser"`
	Proxy      ProxyConfig      `mapstructure:"proxy"      yaml:"proxy"`
	Session    SessionConfig    `mapstructure:"session"    yaml:"session"`
	Location   LocationConfig   `mapstructure:"location"   yaml:"location"`
	Fanout     FanoutConfig     `mapstructure:"fanout"     yaml:"fanout"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Site       SiteConfig       `mapstructure:"site"       yaml:"site"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// PoolConfig controls the worker pool.
type PoolConfig struct {
	Workers        int           `mapstructure:"workers"         yaml:"workers"`
	StaggerMin     time.Duration `mapstructure:"stagger_min"     yaml:"stagger_min"`
	StaggerMax     time.Duration `mapstructure:"stagger_max"     yaml:"stagger_max"`
	CheckpointPath string        `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`
	Preflight      bool          `mapstructure:"preflight"       yaml:"preflight"`
}

// BrowserConfig controls how browser sessions are launched.
type BrowserConfig struct {
	Engine            string        `mapstructure:"engine"             yaml:"engine"` // rod, playwright
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	BinPaths          []string      `mapstructure:"bin_paths"          yaml:"bin_paths"`
	Channels          []string      `mapstructure:"channels"           yaml:"channels"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	UserAgents        []string      `mapstructure:"user_agents"        yaml:"user_agents"`
	BlockResources    []string      `mapstructure:"block_resources"    yaml:"block_resources"`
	Stealth           bool          `mapstructure:"stealth"            yaml:"stealth"`
	ViewportWidth     int           `mapstructure:"viewport_width"     yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"    yaml:"viewport_height"`
}

// ProxyConfig controls proxy rotation across browser launches.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// SessionConfig controls pacing and block detection inside a session.
type SessionConfig struct {
	TargetDelayMin       time.Duration `mapstructure:"target_delay_min"       yaml:"target_delay_min"`
	TargetDelayMax       time.Duration `mapstructure:"target_delay_max"       yaml:"target_delay_max"`
	CooldownMin          time.Duration `mapstructure:"cooldown_min"           yaml:"cooldown_min"`
	CooldownMax          time.Duration `mapstructure:"cooldown_max"           yaml:"cooldown_max"`
	LongBreakProbability float64       `mapstructure:"long_break_probability" yaml:"long_break_probability"`
	LongBreakMin         time.Duration `mapstructure:"long_break_min"         yaml:"long_break_min"`
	LongBreakMax         time.Duration `mapstructure:"long_break_max"         yaml:"long_break_max"`
	SettleDelay          time.Duration `mapstructure:"settle_delay"           yaml:"settle_delay"`
	CaptureWindow        time.Duration `mapstructure:"capture_window"         yaml:"capture_window"`
	ScrollSteps          int           `mapstructure:"scroll_steps"           yaml:"scroll_steps"`
	ScrollPixels         int           `mapstructure:"scroll_pixels"          yaml:"scroll_pixels"`
	ScrollPause          time.Duration `mapstructure:"scroll_pause"           yaml:"scroll_pause"`
	BlockStatuses        []int         `mapstructure:"block_statuses"         yaml:"block_statuses"`
	BlockMarkers         []string      `mapstructure:"block_markers"          yaml:"block_markers"`
	BlockProbeScript     string        `mapstructure:"block_probe_script"     yaml:"block_probe_script"`
	CaptureCacheSize     int           `mapstructure:"capture_cache_size"     yaml:"capture_cache_size"`
}

// LocationConfig drives the location-set protocol. Selector lists are tried
// in order; the first visible element wins.
type LocationConfig struct {
	TriggerSelectors    []string      `mapstructure:"trigger_selectors"    yaml:"trigger_selectors"`
	InputSelectors      []string      `mapstructure:"input_selectors"      yaml:"input_selectors"`
	SuggestionSelectors []string      `mapstructure:"suggestion_selectors" yaml:"suggestion_selectors"`
	ConfirmSelectors    []string      `mapstructure:"confirm_selectors"    yaml:"confirm_selectors"`
	ETASelectors        []string      `mapstructure:"eta_selectors"        yaml:"eta_selectors"`
	ETAPattern          string        `mapstructure:"eta_pattern"          yaml:"eta_pattern"`
	SelectionOrder      []string      `mapstructure:"selection_order"      yaml:"selection_order"`
	StepTimeout         time.Duration `mapstructure:"step_timeout"         yaml:"step_timeout"`
	SuggestionTimeout   time.Duration `mapstructure:"suggestion_timeout"   yaml:"suggestion_timeout"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" yaml:"confirmation_timeout"`
	TypeDelay           time.Duration `mapstructure:"type_delay"           yaml:"type_delay"`
	MaxSuggestionText   int           `mapstructure:"max_suggestion_text"  yaml:"max_suggestion_text"`
}

// FanoutConfig controls the bounded sub-task scheduler.
type FanoutConfig struct {
	Enabled            bool     `mapstructure:"enabled"              yaml:"enabled"`
	Concurrency        int      `mapstructure:"concurrency"          yaml:"concurrency"`
	DiscoverCategories bool     `mapstructure:"discover_categories"  yaml:"discover_categories"`
	MaxCategories      int      `mapstructure:"max_categories"       yaml:"max_categories"`
	FastPathStrategies []string `mapstructure:"fast_path_strategies" yaml:"fast_path_strategies"`
}

// ExtractionConfig controls the strategy chain and the product heuristic.
type ExtractionConfig struct {
	Strategies          []string            `mapstructure:"strategies"             yaml:"strategies"`
	CaptureURLKeywords  []string            `mapstructure:"capture_url_keywords"   yaml:"capture_url_keywords"`
	IDKeys              []string            `mapstructure:"id_keys"                yaml:"id_keys"`
	NameKeys            []string            `mapstructure:"name_keys"              yaml:"name_keys"`
	PriceKeys           []string            `mapstructure:"price_keys"             yaml:"price_keys"`
	MRPKeys             []string            `mapstructure:"mrp_keys"               yaml:"mrp_keys"`
	MaxDepth            int                 `mapstructure:"max_depth"              yaml:"max_depth"`
	MaxNodes            int                 `mapstructure:"max_nodes"              yaml:"max_nodes"`
	PriceInMinorUnits   bool                `mapstructure:"price_in_minor_units"   yaml:"price_in_minor_units"`
	HydrationScript     string              `mapstructure:"hydration_script"       yaml:"hydration_script"`
	HydrationSelector   string              `mapstructure:"hydration_selector"     yaml:"hydration_selector"`
	ProductLinkSelector string              `mapstructure:"product_link_selector"  yaml:"product_link_selector"`
	IDFromLinkPattern   string              `mapstructure:"id_from_link_pattern"   yaml:"id_from_link_pattern"`
	NameFromLinkPattern string              `mapstructure:"name_from_link_pattern" yaml:"name_from_link_pattern"`
	AncestorLevels      int                 `mapstructure:"ancestor_levels"        yaml:"ancestor_levels"`
	RegexAnchor         string              `mapstructure:"regex_anchor"           yaml:"regex_anchor"`
	CategoryFilters     map[string][]string `mapstructure:"category_filters"       yaml:"category_filters"`
}

// SiteConfig describes the storefront being scraped.
type SiteConfig struct {
	Platform           string   `mapstructure:"platform"             yaml:"platform"`
	BaseURL            string   `mapstructure:"base_url"             yaml:"base_url"`
	ProductURLTemplate string   `mapstructure:"product_url_template" yaml:"product_url_template"`
	CategoryPathMarker string   `mapstructure:"category_path_marker" yaml:"category_path_marker"`
	CategoryLinkXPath  string   `mapstructure:"category_link_xpath"  yaml:"category_link_xpath"`
	ExcludeKeywords    []string `mapstructure:"exclude_keywords"     yaml:"exclude_keywords"`
	DefaultCategories  []string `mapstructure:"default_categories"   yaml:"default_categories"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Types       []string       `mapstructure:"types"        yaml:"types"` // csv, jsonl, mongo, postgres, redis
	OutputPath  string         `mapstructure:"output_path"  yaml:"output_path"`
	ChunkSize   int            `mapstructure:"chunk_size"   yaml:"chunk_size"`
	Destination string         `mapstructure:"destination"  yaml:"destination"`
	Mongo       MongoConfig    `mapstructure:"mongo"        yaml:"mongo"`
	Postgres    PostgresConfig `mapstructure:"postgres"     yaml:"postgres"`
	Redis       RedisConfig    `mapstructure:"redis"        yaml:"redis"`
}

// MongoConfig locates the MongoDB sink.
type MongoConfig struct {
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// PostgresConfig locates the Postgres sink.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"       yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// RedisConfig locates the Redis stream sink.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	MaxLen   int64  `mapstructure:"max_len"  yaml:"max_len"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults for the zepto preset.
func DefaultConfig() *Config {
	cfg := &Config{
		Pool: PoolConfig{
			Workers:    4,
			StaggerMin: 2 * time.Second,
			StaggerMax: 5 * time.Second,
		},
		Browser: BrowserConfig{
			Engine:            "rod",
			Headless:          true,
			Channels:          []string{"msedge", "chrome", ""},
			NavigationTimeout: 60 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edge/121.0.0.0 Safari/537.36",
			},
			BlockResources: []string{"*.woff", "*.woff2", "*.ttf", "*.otf", "*.mp4", "*.webm"},
			Stealth:        true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Session: SessionConfig{
			TargetDelayMin:       2 * time.Second,
			TargetDelayMax:       5 * time.Second,
			CooldownMin:          10 * time.Second,
			CooldownMax:          20 * time.Second,
			LongBreakProbability: 0.1,
			LongBreakMin:         30 * time.Second,
			LongBreakMax:         60 * time.Second,
			SettleDelay:          2 * time.Second,
			CaptureWindow:        3 * time.Second,
			ScrollSteps:          5,
			ScrollPixels:         800,
			ScrollPause:          time.Second,
			BlockStatuses:        []int{403},
			BlockMarkers:         []string{"Access Denied", "Request blocked", "You have been blocked"},
			BlockProbeScript:     "() => document.title + ' ' + (document.body ? document.body.innerText.slice(0, 2000) : '')",
			CaptureCacheSize:     4096,
		},
		Location: LocationConfig{
			ETAPattern:          `(\d+)\s*(?:min|mins|minutes)`,
			SelectionOrder:      []string{"suggestion", "confirm", "enter"},
			StepTimeout:         3 * time.Second,
			SuggestionTimeout:   2 * time.Second,
			ConfirmationTimeout: 5 * time.Second,
			TypeDelay:           100 * time.Millisecond,
			MaxSuggestionText:   200,
		},
		Fanout: FanoutConfig{
			Enabled:            true,
			Concurrency:        4,
			DiscoverCategories: true,
			MaxCategories:      0,
			FastPathStrategies: []string{"network", "hydration"},
		},
		Extraction: ExtractionConfig{
			Strategies: []string{"network", "hydration", "dom", "regex"},
			MaxDepth:   64,
			MaxNodes:   500000,
		},
		Storage: StorageConfig{
			Types:       []string{"csv"},
			OutputPath:  "./output",
			ChunkSize:   100,
			Destination: "products",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "quickscout",
			},
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
	ApplyPreset(cfg, "zepto")
	return cfg
}
