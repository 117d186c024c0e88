// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"

	"github.com/jeranaias/wiserchat/internal/budget"
	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/upstream"
	"github.com/jeranaias/wiserchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete wiserchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Upstream UpstreamConfig `toml:"upstream" json:"upstream"`
	Forward  ForwardConfig  `toml:"forward" json:"forward"`
	Server   ServerConfig   `toml:"server" json:"server"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
}

// UpstreamConfig describes the answering service.
type UpstreamConfig struct {
	// Endpoint receives POST {"query": ...} and replies {"answer": ...}.
	Endpoint         string `toml:"endpoint" json:"endpoint"`
	TimeoutSecs      int    `toml:"timeout_secs" json:"timeout_secs"`
	MaxResponseBytes int64  `toml:"max_response_bytes" json:"max_response_bytes"`
}

// Timeout returns the request timeout as a duration.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSecs) * time.Second
}

// ForwardConfig controls how much history is sent with each question.
type ForwardConfig struct {
	ByteLimit    int    `toml:"byte_limit" json:"byte_limit"`
	HistoryScope string `toml:"history_scope" json:"history_scope"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Host               string   `toml:"host" json:"host"`
	Port               int      `toml:"port" json:"port"`
	AuthToken          string   `toml:"auth_token" json:"auth_token"`
	AllowedIPs         []string `toml:"allowed_ips" json:"allowed_ips"`
	CORSOrigins        []string `toml:"cors_origins" json:"cors_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend"`
	Dir     string `toml:"dir" json:"dir"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	dataDir := ""
	if dir, err := ConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "data")
	}

	return &Config{
		Version: "1.0.0",

		Upstream: UpstreamConfig{
			Endpoint:         upstream.DefaultEndpoint,
			TimeoutSecs:      int(upstream.DefaultTimeout / time.Second),
			MaxResponseBytes: upstream.MaxResponseSize,
		},

		Forward: ForwardConfig{
			ByteLimit:    budget.DefaultByteLimit,
			HistoryScope: string(forwarder.ScopeLatest),
		},

		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8080,
			RateLimitPerMinute: 60,
		},

		Storage: StorageConfig{
			Backend: string(storage.BackendFile),
			Dir:     dataDir,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the wiserchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".wiserchat"), nil
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

// ActivePath returns the config file Load would read, or "" when only
// defaults apply.
func ActivePath() string {
	for _, fn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := fn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ensureSecurePermissions tightens config files to 0600; they may hold the auth token.
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
func Load() (*Config, error) {
	if path := ActivePath(); path != "" {
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		// Keep going with defaults so a broken file never blocks startup,
		// but hand the error back for the caller to report.
		fallback, ferr := finish(Default())
		if ferr != nil {
			return nil, ferr
		}
		return fallback, err
	}
	return finish(Default())
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file. Comments and trailing
// commas are accepted.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
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

	return finish(cfg)
}

// finish applies env overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# wiserchat configuration file\n")
	b.WriteString("# Generated by wiserchat - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// ==========================================================================
	// Upstream
	// ==========================================================================

	if c.Upstream.Endpoint == "" {
		errs = append(errs, ValidationError{Field: "upstream.endpoint", Message: "must not be empty"})
	} else if u, err := url.Parse(c.Upstream.Endpoint); err != nil {
		errs = append(errs, ValidationError{
			Field:   "upstream.endpoint",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "upstream.endpoint",
			Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
		})
	}

	if c.Upstream.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "upstream.timeout_secs", Message: "cannot be negative"})
	}
	if c.Upstream.MaxResponseBytes < 0 {
		errs = append(errs, ValidationError{Field: "upstream.max_response_bytes", Message: "cannot be negative"})
	}

	// ==========================================================================
	// Forward
	// ==========================================================================

	if c.Forward.ByteLimit < 0 {
		errs = append(errs, ValidationError{Field: "forward.byte_limit", Message: "cannot be negative"})
	}
	if _, err := forwarder.ParseScope(c.Forward.HistoryScope); err != nil {
		errs = append(errs, ValidationError{Field: "forward.history_scope", Message: err.Error()})
	}

	// ==========================================================================
	// Server
	// ==========================================================================

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range 1-65535", c.Server.Port),
		})
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_per_minute", Message: "cannot be negative"})
	}
	for _, entry := range c.Server.AllowedIPs {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.allowed_ips",
				Message: fmt.Sprintf("'%s' is neither an IP nor a CIDR", entry),
			})
		}
	}

	// ==========================================================================
	// Storage
	// ==========================================================================

	if _, err := storage.ParseBackend(c.Storage.Backend); err != nil {
		errs = append(errs, ValidationError{Field: "storage.backend", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values left by partial config files.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Upstream.Endpoint == "" {
		c.Upstream.Endpoint = defaults.Upstream.Endpoint
	}
	if c.Upstream.TimeoutSecs == 0 {
		c.Upstream.TimeoutSecs = defaults.Upstream.TimeoutSecs
	}
	if c.Upstream.MaxResponseBytes == 0 {
		c.Upstream.MaxResponseBytes = defaults.Upstream.MaxResponseBytes
	}
	if c.Forward.ByteLimit == 0 {
		c.Forward.ByteLimit = defaults.Forward.ByteLimit
	}
	if c.Forward.HistoryScope == "" {
		c.Forward.HistoryScope = defaults.Forward.HistoryScope
	}
	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = defaults.Storage.Dir
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - WISERCHAT_ENDPOINT: overrides upstream.endpoint
//   - WISERCHAT_PORT: overrides server.port
//   - WISERCHAT_BYTE_LIMIT: overrides forward.byte_limit
//   - WISERCHAT_STORAGE: overrides storage.backend
//   - WISERCHAT_DATA_DIR: overrides storage.dir
//   - WISERCHAT_AUTH_TOKEN: overrides server.auth_token
func (c *Config) ApplyEnvOverrides() {
	if endpoint := os.Getenv("WISERCHAT_ENDPOINT"); endpoint != "" {
		c.Upstream.Endpoint = endpoint
	}

	if port := os.Getenv("WISERCHAT_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring WISERCHAT_PORT=%q: %v\n", port, err)
		}
	}

	if limit := os.Getenv("WISERCHAT_BYTE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			c.Forward.ByteLimit = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring WISERCHAT_BYTE_LIMIT=%q: %v\n", limit, err)
		}
	}

	if backend := os.Getenv("WISERCHAT_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}

	if dir := os.Getenv("WISERCHAT_DATA_DIR"); dir != "" {
		c.Storage.Dir = dir
	}

	if token := os.Getenv("WISERCHAT_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "forward.byte_limit").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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
	if key == "" {
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
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
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
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation, sorted.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("toml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, name, keys)
			continue
		}
		*keys = append(*keys, name)
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.AllowedIPs = append([]string(nil), c.Server.AllowedIPs...)
	clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return &clone
}

// String returns the config as JSON with the auth token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
