package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend kinds.
const (
	BackendLocal     = "local"
	BackendPostgREST = "postgrest"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Import   ImportConfig   `mapstructure:"import"`
	UI       UIConfig       `mapstructure:"ui"`
	Media    MediaConfig    `mapstructure:"media"`
	Keys     KeyConfig      `mapstructure:"keys"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

// BackendConfig selects where listings come from: the local bbolt catalog or
// a hosted PostgREST endpoint.
type BackendConfig struct {
	Kind      string        `mapstructure:"kind"`
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type FeedConfig struct {
	PageSize     int           `mapstructure:"page_size"`
	Debounce     time.Duration `mapstructure:"debounce"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type ImportConfig struct {
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type UIConfig struct {
	Colors   UIColors `mapstructure:"colors"`
	Currency string   `mapstructure:"currency"`
	TimeZone string   `mapstructure:"time_zone"`
}

type UIColors struct {
	Primary    string `mapstructure:"primary"`
	Secondary  string `mapstructure:"secondary"`
	Accent     string `mapstructure:"accent"`
	Background string `mapstructure:"background"`
	Surface    string `mapstructure:"surface"`
	Text       string `mapstructure:"text"`
	Muted      string `mapstructure:"muted"`
	Error      string `mapstructure:"error"`
	Success    string `mapstructure:"success"`
}

type MediaConfig struct {
	Darwin        MediaViewers `mapstructure:"darwin"`
	Linux         MediaViewers `mapstructure:"linux"`
	Windows       MediaViewers `mapstructure:"windows"`
	DefaultOpener string       `mapstructure:"default_opener"`
}

type MediaViewers struct {
	Image []string `mapstructure:"image"`
}

type KeyConfig struct {
	Modifier string      `mapstructure:"modifier"`
	Bindings KeyBindings `mapstructure:"bindings"`
}

type KeyBindings struct {
	Quit    string `mapstructure:"quit"`
	Search  string `mapstructure:"search"`
	Refresh string `mapstructure:"refresh"`
	Delete  string `mapstructure:"delete"`
	Open    string `mapstructure:"open"`
	Back    string `mapstructure:"back"`
	Help    string `mapstructure:"help"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".bazaar.db")
	searchIndexPath := filepath.Join(homeDir, ".bazaar", "index.bleve")

	return &Config{
		Database: DatabaseConfig{
			Path:        dbPath,
			Timeout:     1 * time.Second,
			SearchIndex: searchIndexPath,
		},
		Backend: BackendConfig{
			Kind:      BackendLocal,
			Timeout:   15 * time.Second,
			UserAgent: "bazaar/1.0 (https://github.com/pders01/bazaar)",
		},
		Feed: FeedConfig{
			PageSize:     3,
			Debounce:     500 * time.Millisecond,
			FetchTimeout: 15 * time.Second,
		},
		Import: ImportConfig{
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "bazaar/1.0 (listing importer; github.com/pders01/bazaar)",
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:    "#FF6B6B",
				Secondary:  "#4ECDC4",
				Accent:     "#95E1D3",
				Background: "#1A1A2E",
				Surface:    "#16213E",
				Text:       "#EAEAEA",
				Muted:      "#94A3B8",
				Error:      "#F87171",
				Success:    "#4ADE80",
			},
			Currency: "฿",
			TimeZone: "Asia/Bangkok",
		},
		Media: MediaConfig{
			Darwin:        MediaViewers{Image: []string{"qlmanage", "open"}},
			Linux:         MediaViewers{Image: []string{"sxiv", "feh", "eog", "xdg-open"}},
			Windows:       MediaViewers{Image: []string{"start"}},
			DefaultOpener: getDefaultOpener(),
		},
		Keys: KeyConfig{
			Modifier: "ctrl",
			Bindings: KeyBindings{
				Quit:    "q",
				Search:  "s",
				Refresh: "r",
				Delete:  "x",
				Open:    "o",
				Back:    "esc",
				Help:    "?",
			},
		},
		Log: LogConfig{
			Level: "off",
		},
	}
}

func getDefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "linux":
		return "xdg-open"
	case "windows":
		return "start"
	default:
		return "open"
	}
}

// setDefaults registers every leaf key so that file values merge with the
// defaults instead of replacing whole sections, and so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range toMap(cfg, false) {
		v.SetDefault(key, value)
	}
}

func toMap(cfg *Config, durationsAsStrings bool) map[string]interface{} {
	dur := func(d time.Duration) interface{} {
		if durationsAsStrings {
			return d.String()
		}
		return d
	}
	return map[string]interface{}{
		"database.path":         cfg.Database.Path,
		"database.timeout":      dur(cfg.Database.Timeout),
		"database.search_index": cfg.Database.SearchIndex,
		"backend.kind":          cfg.Backend.Kind,
		"backend.url":           cfg.Backend.URL,
		"backend.api_key":       cfg.Backend.APIKey,
		"backend.timeout":       dur(cfg.Backend.Timeout),
		"backend.user_agent":    cfg.Backend.UserAgent,
		"feed.page_size":        cfg.Feed.PageSize,
		"feed.debounce":         dur(cfg.Feed.Debounce),
		"feed.fetch_timeout":    dur(cfg.Feed.FetchTimeout),
		"import.http_timeout":   dur(cfg.Import.HTTPTimeout),
		"import.user_agent":     cfg.Import.UserAgent,
		"ui.colors.primary":     cfg.UI.Colors.Primary,
		"ui.colors.secondary":   cfg.UI.Colors.Secondary,
		"ui.colors.accent":      cfg.UI.Colors.Accent,
		"ui.colors.background":  cfg.UI.Colors.Background,
		"ui.colors.surface":     cfg.UI.Colors.Surface,
		"ui.colors.text":        cfg.UI.Colors.Text,
		"ui.colors.muted":       cfg.UI.Colors.Muted,
		"ui.colors.error":       cfg.UI.Colors.Error,
		"ui.colors.success":     cfg.UI.Colors.Success,
		"ui.currency":           cfg.UI.Currency,
		"ui.time_zone":          cfg.UI.TimeZone,
		"media.darwin.image":    cfg.Media.Darwin.Image,
		"media.linux.image":     cfg.Media.Linux.Image,
		"media.windows.image":   cfg.Media.Windows.Image,
		"media.default_opener":  cfg.Media.DefaultOpener,
		"keys.modifier":         cfg.Keys.Modifier,
		"keys.bindings.quit":    cfg.Keys.Bindings.Quit,
		"keys.bindings.search":  cfg.Keys.Bindings.Search,
		"keys.bindings.refresh": cfg.Keys.Bindings.Refresh,
		"keys.bindings.delete":  cfg.Keys.Bindings.Delete,
		"keys.bindings.open":    cfg.Keys.Bindings.Open,
		"keys.bindings.back":    cfg.Keys.Bindings.Back,
		"keys.bindings.help":    cfg.Keys.Bindings.Help,
		"log.level":             cfg.Log.Level,
		"log.file":              cfg.Log.File,
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "bazaar")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BAZAAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	return &config, nil
}

// Validate reports settings the application cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("feed.page_size must be positive, got %d", c.Feed.PageSize))
	}
	if c.Feed.Debounce < 0 {
		errs = append(errs, fmt.Errorf("feed.debounce must not be negative"))
	}
	if c.Feed.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("feed.fetch_timeout must be positive"))
	}
	switch c.Backend.Kind {
	case BackendLocal:
	case BackendPostgREST:
		if strings.TrimSpace(c.Backend.URL) == "" || strings.TrimSpace(c.Backend.APIKey) == "" {
			errs = append(errs, fmt.Errorf("backend.url and backend.api_key are required for the %s backend", BackendPostgREST))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend.kind %q", c.Backend.Kind))
	}
	return errors.Join(errs...)
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.File = expandPath(cfg.Log.File)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations as strings for TOML readability
	for key, value := range toMap(config, true) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
