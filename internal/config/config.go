// Package config loads and validates wirebot configuration.
//
// Configuration comes from an optional YAML file in which ${VAR_NAME}
// references are replaced by environment variables. The Wire credentials may
// also be supplied directly through WIRE_EMAIL and WIRE_PASS, which is the
// only configuration an env-only deployment needs.
//
// # Example Configuration
//
//	robot:
//	  name: "wirebot"
//	  alias: "!"
//	wire:
//	  email: "${WIRE_EMAIL}"
//	  password: "${WIRE_PASS}"
//	  backend: "production"
//	store:
//	  path: "~/.wirebot/wirebot.db"
//	http:
//	  enabled: true
//	  host: "127.0.0.1"
//	  port: 8080
//	  token: "${WIREBOT_HTTP_TOKEN}"
//	logging:
//	  level: "info"
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/keepmind9/wirebot/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	// EnvEmail and EnvPassword hold the Wire account credentials
	EnvEmail    = "WIRE_EMAIL"
	EnvPassword = "WIRE_PASS"

	BackendProduction = "production"
	BackendStaging    = "staging"
	BackendCustom     = "custom"

	ClientTypePermanent = "permanent"
	ClientTypeTemporary = "temporary"

	DefaultLogLevel      = "info"
	DefaultLogMaxBackups = 5
	DefaultStorePath     = "~/.wirebot/wirebot.db"
	DefaultHTTPHost      = "127.0.0.1"
)

// envRefPattern matches ${VAR_NAME}. A bare $ is left alone.
var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns a configuration with every optional field filled in.
// Credentials are left empty.
func Default() *Config {
	return &Config{
		Robot: RobotConfig{
			Name: constants.DefaultRobotName,
		},
		Wire: WireConfig{
			Backend:        BackendProduction,
			ClientType:     ClientTypePermanent,
			RequestTimeout: constants.DefaultRequestTimeout.String(),
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    DefaultHTTPHost,
			Port:    constants.DefaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level:        DefaultLogLevel,
			MaxSize:      constants.DefaultLogMaxSize,
			MaxBackups:   DefaultLogMaxBackups,
			MaxAge:       constants.DefaultLogMaxAge,
			Compress:     true,
			EnableStdout: true,
		},
	}
}

// LoadConfig loads configuration from file, expands environment variables and
// validates the result. An empty path builds the configuration from defaults
// and the environment alone.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expandedData, err := expandEnv(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to expand environment variables: %w", err)
		}

		if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(config)
	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := envRefPattern.ReplaceAllStringFunc(input, func(ref string) string {
		key := envRefPattern.FindStringSubmatch(ref)[1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// applyEnv fills credentials the file left empty from WIRE_EMAIL and WIRE_PASS
func applyEnv(config *Config) {
	if config.Wire.Email == "" {
		config.Wire.Email = os.Getenv(EnvEmail)
	}
	if config.Wire.Password == "" {
		config.Wire.Password = os.Getenv(EnvPassword)
	}
}

// applyDefaults restores defaults for fields a file explicitly blanked out
func applyDefaults(config *Config) {
	def := Default()

	if config.Robot.Name == "" {
		config.Robot.Name = def.Robot.Name
	}
	if config.Wire.Backend == "" {
		config.Wire.Backend = def.Wire.Backend
	}
	if config.Wire.ClientType == "" {
		config.Wire.ClientType = def.Wire.ClientType
	}
	if config.Wire.RequestTimeout == "" {
		config.Wire.RequestTimeout = def.Wire.RequestTimeout
	}
	if config.Store.Path == "" {
		config.Store.Path = def.Store.Path
	}
	if config.HTTP.Host == "" {
		config.HTTP.Host = def.HTTP.Host
	}
	if config.HTTP.Port == 0 {
		config.HTTP.Port = def.HTTP.Port
	}
	if config.Logging.Level == "" {
		config.Logging.Level = def.Logging.Level
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = def.Logging.MaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = def.Logging.MaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = def.Logging.MaxAge
	}
}

// Validate checks the configuration. Missing credentials are reported first.
func (c *Config) Validate() error {
	if err := c.Wire.ValidateCredentials(); err != nil {
		return err
	}

	switch c.Wire.Backend {
	case BackendProduction, BackendStaging:
	case BackendCustom:
		if c.Wire.RESTURL == "" || c.Wire.WebSocketURL == "" {
			return fmt.Errorf("wire.rest_url and wire.ws_url are required when backend is %q", BackendCustom)
		}
	default:
		return fmt.Errorf("unknown wire.backend %q (expected production, staging or custom)", c.Wire.Backend)
	}

	switch c.Wire.ClientType {
	case ClientTypePermanent, ClientTypeTemporary:
	default:
		return fmt.Errorf("unknown wire.client_type %q (expected permanent or temporary)", c.Wire.ClientType)
	}

	timeout, err := time.ParseDuration(c.Wire.RequestTimeout)
	if err != nil {
		return fmt.Errorf("invalid wire.request_timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("wire.request_timeout must be positive (got %v)", timeout)
	}

	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		return fmt.Errorf("http.port must be between 1 and 65535 (got %d)", c.HTTP.Port)
	}
	if c.HTTP.Enabled && !c.HTTP.Loopback() && c.HTTP.Token == "" {
		return fmt.Errorf("http.token is required when http.host %q is not a loopback address", c.HTTP.Host)
	}

	return nil
}

// ValidateCredentials reports a missing email or password
func (w WireConfig) ValidateCredentials() error {
	if w.Email == "" {
		return fmt.Errorf("environment variable `%s` is required", EnvEmail)
	}
	if w.Password == "" {
		return fmt.Errorf("environment variable `%s` is required", EnvPassword)
	}
	return nil
}

// Endpoints resolves the REST and websocket base URLs for the configured backend
func (w WireConfig) Endpoints() (restURL, wsURL string) {
	switch w.Backend {
	case BackendStaging:
		return constants.StagingRESTURL, constants.StagingWebSocketURL
	case BackendCustom:
		return strings.TrimSuffix(w.RESTURL, "/"), strings.TrimSuffix(w.WebSocketURL, "/")
	default:
		return constants.ProductionRESTURL, constants.ProductionWebSocketURL
	}
}

// Timeout returns the parsed request timeout, falling back to the default
func (w WireConfig) Timeout() time.Duration {
	timeout, err := time.ParseDuration(w.RequestTimeout)
	if err != nil || timeout <= 0 {
		return constants.DefaultRequestTimeout
	}
	return timeout
}

// StorePath returns the store path with "~" expanded
func (c *Config) StorePath() (string, error) {
	return expandHome(c.Store.Path)
}

// expandHome expands ~ to user's home directory
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home + path[1:], nil
	}
	return path, nil
}

// Address is the host:port the HTTP router listens on
func (h HTTPConfig) Address() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// Loopback reports whether the router is only reachable from this machine
func (h HTTPConfig) Loopback() bool {
	if h.Host == "localhost" {
		return true
	}
	ip := net.ParseIP(h.Host)
	return ip != nil && ip.IsLoopback()
}
