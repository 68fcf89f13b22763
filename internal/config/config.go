// Package config loads server configuration from flags, environment variables, a .env file and an optional YAML file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Cascade modes for room deletion.
const (
	// CascadeClient deletes the room, then each of its comments as separate operations.
	CascadeClient = "client"
	// CascadeTransactional deletes the room and its comments in one store transaction.
	CascadeTransactional = "transactional"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Server   ServerConfig
	Auth     AuthConfig
	Store    StoreConfig
	Realtime RealtimeConfig
	Search   SearchConfig

	// File is the YAML config file that was loaded, empty if none.
	File string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk location for databases, indexes and keys.
type DataConfig struct {
	Path string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AdvertiseMDNS  bool
	AllowedOrigins []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key (32 bytes), hex encoded. Set from auth.LoadOrGenerateKey.
	AccessTokenKey      string
	AccessTokenDuration time.Duration
}

// StoreConfig selects the persistence backend and delete semantics.
type StoreConfig struct {
	Backend     string
	CascadeMode string
}

// RealtimeConfig tunes the subscription hub.
type RealtimeConfig struct {
	HeartbeatInterval time.Duration
	SessionBuffer     int
	AllowAnonymous    bool
}

// SearchConfig toggles the comment search index.
type SearchConfig struct {
	Enabled bool
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. YAML config file.
// 5. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("roomnotes", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for databases, search index and keys")
	configFile := fs.String("config", "", "Path to YAML config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	serverName := fs.String("server-name", "", "Name advertised for the server")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	advertiseMDNS := fs.String("advertise-mdns", "", "Advertise via mDNS (default: true)")
	allowedOrigins := fs.String("allowed-origins", "", "Comma-separated CORS origins (default: *)")

	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (default: 24h)")

	storeBackend := fs.String("store-backend", "", "Persistence backend: badger or sqlite")
	cascadeMode := fs.String("cascade-mode", "", "Room delete cascade: client or transactional")

	heartbeat := fs.String("heartbeat-interval", "", "Realtime heartbeat interval (default: 30s)")
	sessionBuffer := fs.String("session-buffer", "", "Messages buffered per realtime session (default: 256)")
	allowAnonymous := fs.String("allow-anonymous", "", "Allow unauthenticated realtime methods (default: false)")

	searchEnabled := fs.String("search-enabled", "", "Enable comment search index (default: true)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfgPath := getConfigValue(*configFile, "CONFIG_FILE", "")
	k, err := loadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	d := fileDefaults{k: k}

	cfg := &Config{
		File: cfgPath,
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", d.str("app.environment", "development")),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", d.str("logger.level", "info")),
		},
		Data: DataConfig{
			Path: getConfigValue(*dataPath, "DATA_PATH", d.str("data.path", "")),
		},
		Server: ServerConfig{
			Name:           getConfigValue(*serverName, "SERVER_NAME", d.str("server.name", "Roomnotes")),
			Port:           getConfigValue(*serverPort, "SERVER_PORT", d.str("server.port", "8080")),
			AdvertiseMDNS:  getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", d.boolean("server.advertise_mdns", true)),
			AllowedOrigins: splitList(getConfigValue(*allowedOrigins, "ALLOWED_ORIGINS", d.list("server.allowed_origins", "*"))),
		},
		Store: StoreConfig{
			Backend:     getConfigValue(*storeBackend, "STORE_BACKEND", d.str("store.backend", BackendBadger)),
			CascadeMode: getConfigValue(*cascadeMode, "CASCADE_MODE", d.str("store.cascade_mode", CascadeClient)),
		},
		Realtime: RealtimeConfig{
			SessionBuffer:  getIntConfigValue(*sessionBuffer, "REALTIME_SESSION_BUFFER", d.integer("realtime.session_buffer", 256)),
			AllowAnonymous: getBoolConfigValue(*allowAnonymous, "REALTIME_ALLOW_ANONYMOUS", d.boolean("realtime.allow_anonymous", false)),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", d.boolean("search.enabled", true)),
		},
	}

	durations := []struct {
		dst        *time.Duration
		flagValue  string
		envKey     string
		fileKey    string
		defaultVal string
	}{
		{&cfg.Auth.AccessTokenDuration, *accessTokenDuration, "ACCESS_TOKEN_DURATION", "auth.access_token_duration", "24h"},
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "server.read_timeout", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "server.write_timeout", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "server.idle_timeout", "60s"},
		{&cfg.Realtime.HeartbeatInterval, *heartbeat, "REALTIME_HEARTBEAT_INTERVAL", "realtime.heartbeat_interval", "30s"},
	}
	for _, dur := range durations {
		raw := getConfigValue(dur.flagValue, dur.envKey, d.str(dur.fileKey, dur.defaultVal))
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", dur.fileKey, raw, err)
		}
		*dur.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	if !ValidLogLevel(c.Logger.Level) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.Path == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Store.Backend {
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("invalid store backend: %s (must be badger or sqlite)", c.Store.Backend)
	}

	switch c.Store.CascadeMode {
	case CascadeClient, CascadeTransactional:
	default:
		return fmt.Errorf("invalid cascade mode: %s (must be client or transactional)", c.Store.CascadeMode)
	}

	if c.Realtime.SessionBuffer < 1 {
		return fmt.Errorf("realtime session buffer must be positive, got %d", c.Realtime.SessionBuffer)
	}

	return nil
}

// ValidLogLevel reports whether level is one the logger understands.
func ValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// loadFile reads the YAML config file. An empty path yields an empty koanf instance.
func loadFile(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if path == "" {
		return k, nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config file %s: %w", path, err)
	}
	return k, nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults the data path to ~/Roomnotes/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Roomnotes", "data")

	expanded, err := expandPath(c.Data.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Data.Path = expanded
	return nil
}

// fileDefaults supplies defaults from the YAML file, falling back to built-ins.
type fileDefaults struct {
	k *koanf.Koanf
}

func (d fileDefaults) str(key, fallback string) string {
	if d.k.Exists(key) {
		return d.k.String(key)
	}
	return fallback
}

func (d fileDefaults) boolean(key string, fallback bool) bool {
	if d.k.Exists(key) {
		return d.k.Bool(key)
	}
	return fallback
}

func (d fileDefaults) integer(key string, fallback int) int {
	if d.k.Exists(key) {
		return d.k.Int(key)
	}
	return fallback
}

func (d fileDefaults) list(key, fallback string) string {
	if d.k.Exists(key) {
		return strings.Join(d.k.Strings(key), ",")
	}
	return fallback
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments). Variables already set win.
func loadEnvFile(path string) error {
	f, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
