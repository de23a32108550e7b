// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete arth configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Chat service connection
	API APIConfig `toml:"api" json:"api"`

	// Reply stream handling
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`

	// Prometheus endpoint
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`

	// Terminal output
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig contains the chat service connection settings.
type APIConfig struct {
	// BaseURL is the chat API base URL
	BaseURL string `toml:"base_url" json:"base_url"`
	// Token is the Bearer access token
	Token string `toml:"token" json:"token"`
	// CustomerID identifies the customer on every request
	CustomerID string `toml:"customer_id" json:"customer_id"`
	// Transport is the reply transport: "http", "sse" or "websocket"
	Transport string `toml:"transport" json:"transport"`
	// StreamPath is the SSE endpoint path
	StreamPath string `toml:"stream_path" json:"stream_path"`
	// WebSocketURL overrides the derived WebSocket endpoint
	WebSocketURL string `toml:"websocket_url" json:"websocket_url,omitempty"`
	// TimeoutSecs bounds non-streaming requests such as uploads
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// ConnectTimeoutSecs bounds connecting and waiting for response headers
	ConnectTimeoutSecs int `toml:"connect_timeout_secs" json:"connect_timeout_secs"`
	// RequestsPerSecond paces outgoing requests
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// StreamConfig contains reply stream settings.
type StreamConfig struct {
	// ShowPartials prints in-progress reply text while streaming
	ShowPartials bool `toml:"show_partials" json:"show_partials"`
	// ReplayChunkSize is the default chunk size for "arth replay"
	ReplayChunkSize int `toml:"replay_chunk_size" json:"replay_chunk_size"`
	// ReplyTimeoutSecs cancels a reply that runs longer (0 = no limit)
	ReplyTimeoutSecs int `toml:"reply_timeout_secs" json:"reply_timeout_secs"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error"
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json"
	Format string `toml:"format" json:"format"`
	// File receives logs instead of stderr when set
	File string `toml:"file" json:"file,omitempty"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address of /metrics, e.g. ":9464" (empty = disabled)
	Addr string `toml:"addr" json:"addr"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	// Color is "auto", "always" or "never"
	Color string `toml:"color" json:"color"`
	// Markdown renders final replies as markdown on a TTY
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowStats prints timing after each reply
	ShowStats bool `toml:"show_stats" json:"show_stats"`
	// HistoryFile stores REPL input history (relative to the config dir)
	HistoryFile string `toml:"history_file" json:"history_file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			BaseURL:            "https://co.inwealthera.com/api/user",
			Transport:          "http",
			StreamPath:         "/chat/stream",
			TimeoutSecs:        30,
			ConnectTimeoutSecs: 10,
			RequestsPerSecond:  5,
		},

		Stream: StreamConfig{
			ShowPartials:    true,
			ReplayChunkSize: 64,
		},

		Log: LogConfig{
			Level:  "warn",
			Format: logging.FormatText,
		},

		UI: UIConfig{
			Color:       "auto",
			Markdown:    true,
			ShowStats:   false,
			HistoryFile: "history",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the arth configuration directory path. ARTH_HOME
// overrides the default of ~/.arth.
func ConfigDir() (string, error) {
	if dir := os.Getenv("ARTH_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".arth"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// HistoryPath returns the absolute path of the REPL history file.
func (c *Config) HistoryPath() (string, error) {
	if filepath.IsAbs(c.UI.HistoryFile) {
		return c.UI.HistoryFile, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.UI.HistoryFile), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens config file permissions to 0600, since
// the file may hold the access token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
//
// A file that exists but cannot be parsed is reported in the returned error
// alongside the defaults, so callers can warn and carry on.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	paths := []struct {
		path func() (string, error)
		load func(*Config, string) error
		kind string
	}{
		{ConfigPathTOML, LoadTOML, "TOML"},
		{ConfigPathJSON, LoadJSON, "JSON"},
	}

	for _, p := range paths {
		path, err := p.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		fileCfg := Default()
		if err := p.load(fileCfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load %s config: %w", p.kind, err)
			continue
		}
		cfg = fileCfg
		loadErr = nil
		break
	}

	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, loadErr
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		logging.Warn("could not ensure secure permissions", "path", path, "error", err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		logging.Warn("could not ensure secure permissions", "path", path, "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// API
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.Transport == "" {
		cfg.API.Transport = defaults.API.Transport
	}
	if cfg.API.StreamPath == "" {
		cfg.API.StreamPath = defaults.API.StreamPath
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.API.ConnectTimeoutSecs == 0 {
		cfg.API.ConnectTimeoutSecs = defaults.API.ConnectTimeoutSecs
	}
	if cfg.API.RequestsPerSecond == 0 {
		cfg.API.RequestsPerSecond = defaults.API.RequestsPerSecond
	}

	// Stream
	if cfg.Stream.ReplayChunkSize == 0 {
		cfg.Stream.ReplayChunkSize = defaults.Stream.ReplayChunkSize
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	// UI
	if cfg.UI.Color == "" {
		cfg.UI.Color = defaults.UI.Color
	}
	if cfg.UI.HistoryFile == "" {
		cfg.UI.HistoryFile = defaults.UI.HistoryFile
	}
}

// Normalize lower-cases enumerated values and resolves aliases.
func (c *Config) Normalize() {
	c.API.Transport = strings.ToLower(strings.TrimSpace(c.API.Transport))
	if c.API.Transport == "ws" {
		c.API.Transport = "websocket"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.UI.Color = strings.ToLower(c.UI.Color)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# arth configuration file\n")
	buf.WriteString("# Generated by arth - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every validation failure.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validTransports = map[string]bool{"http": true, "sse": true, "websocket": true, "ws": true}
	validLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats    = map[string]bool{logging.FormatText: true, logging.FormatJSON: true}
	validColors     = map[string]bool{"auto": true, "always": true, "never": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil {
		add("api.base_url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("api.base_url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("api.base_url", "missing host")
	}

	if c.API.WebSocketURL != "" {
		if u, err := url.Parse(c.API.WebSocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			add("api.websocket_url", "must be a ws:// or wss:// URL")
		}
	}
	if !validTransports[strings.ToLower(c.API.Transport)] {
		add("api.transport", "invalid transport '%s', must be one of: http, sse, websocket", c.API.Transport)
	}
	if c.API.StreamPath != "" && !strings.HasPrefix(c.API.StreamPath, "/") {
		add("api.stream_path", "must start with /")
	}
	if c.API.TimeoutSecs < 0 {
		add("api.timeout_secs", "cannot be negative")
	}
	if c.API.ConnectTimeoutSecs < 0 {
		add("api.connect_timeout_secs", "cannot be negative")
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "cannot be negative")
	}

	// Stream
	if c.Stream.ReplayChunkSize < 0 {
		add("stream.replay_chunk_size", "cannot be negative")
	}
	if c.Stream.ReplyTimeoutSecs < 0 {
		add("stream.reply_timeout_secs", "cannot be negative")
	}

	// Log
	if !validLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	// Metrics
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			add("metrics.addr", "invalid listen address: %v", err)
		}
	}

	// UI
	if !validColors[strings.ToLower(c.UI.Color)] {
		add("ui.color", "invalid color mode '%s', must be one of: auto, always, never", c.UI.Color)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - ARTH_API_URL: overrides api.base_url
//   - ARTH_TOKEN: overrides api.token
//   - ARTH_CUSTOMER_ID: overrides api.customer_id
//   - ARTH_TRANSPORT: overrides api.transport
//   - ARTH_LOG_LEVEL: overrides log.level
//   - ARTH_METRICS_ADDR: overrides metrics.addr
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ARTH_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ARTH_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("ARTH_CUSTOMER_ID"); v != "" {
		c.API.CustomerID = v
	}
	if v := os.Getenv("ARTH_TRANSPORT"); v != "" {
		c.API.Transport = v
	}
	if v := os.Getenv("ARTH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ARTH_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "api.transport").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "api.transport").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"api.base_url",
		"api.token",
		"api.customer_id",
		"api.transport",
		"api.stream_path",
		"api.websocket_url",
		"api.timeout_secs",
		"api.connect_timeout_secs",
		"api.requests_per_second",
		"stream.show_partials",
		"stream.replay_chunk_size",
		"stream.reply_timeout_secs",
		"log.level",
		"log.format",
		"log.file",
		"metrics.addr",
		"ui.color",
		"ui.markdown",
		"ui.show_stats",
		"ui.history_file",
	}
}

// IsSecretKey reports whether key holds a credential that should not be
// printed.
func IsSecretKey(key string) bool {
	return strings.EqualFold(key, "api.token")
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config with the token
// redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Token != "" {
		safe.API.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
