package config

// Config represents the complete wirebot configuration structure
type Config struct {
	Robot   RobotConfig   `yaml:"robot"`
	Wire    WireConfig    `yaml:"wire"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// RobotConfig represents the host robot's identity
type RobotConfig struct {
	Name  string `yaml:"name"`  // Name the robot answers to in respond listeners
	Alias string `yaml:"alias"` // Optional short alias, e.g. "!"
}

// WireConfig represents the Wire backend account and endpoints
type WireConfig struct {
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	Backend        string `yaml:"backend"`         // production, staging or custom
	RESTURL        string `yaml:"rest_url"`        // Required when backend is custom
	WebSocketURL   string `yaml:"ws_url"`          // Required when backend is custom
	ClientType     string `yaml:"client_type"`     // permanent or temporary (default: permanent)
	RequestTimeout string `yaml:"request_timeout"` // e.g. "30s"
}

// StoreConfig represents the local sqlite store
type StoreConfig struct {
	Path string `yaml:"path"` // Database file, "~" is expanded
}

// HTTPConfig represents the robot's HTTP router
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`  // Bind address (default: 127.0.0.1)
	Port    int    `yaml:"port"`
	Token   string `yaml:"token"` // Bearer token for /wirebot/say, required off loopback
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
