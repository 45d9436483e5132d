package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sonitel/callbridge/internal/callcontrol"
	"github.com/sonitel/callbridge/internal/recognition"
	"github.com/sonitel/callbridge/internal/recording"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server      ServerConfig       `toml:"server"`       // HTTP server settings
	Logging     LoggingConfig      `toml:"logging"`      // Application logging settings
	Recognition RecognitionConfig  `toml:"recognition"`  // Speech recognition service settings
	CallControl callcontrol.Config `toml:"call_control"` // Telephony call update settings
	Recording   recording.Config   `toml:"recording"`    // Offline recording transcription settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // Primary HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, required for media websockets)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts  []int  `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// RecognitionConfig contains settings for the streaming recognition service
type RecognitionConfig struct {
	Endpoint string `toml:"endpoint"` // WebSocket endpoint of the recognition service
	APIKey   string `toml:"api_key"`  // API key for the recognition service

	// Audio settings for the recognizer. Media-stream payloads are
	// transcoded to this encoding before they are forwarded.
	Encoding                   string `toml:"encoding"`                     // Encoding of forwarded audio (e.g., "linear16")
	SampleRateHertz            int    `toml:"sample_rate_hertz"`            // Sample rate of forwarded audio (telephony streams are 8000)
	LanguageCode               string `toml:"language_code"`                // Primary language for recognition (e.g., "en-US")
	Model                      string `toml:"model"`                        // Recognition model (e.g., "phone_call")
	EnableAutomaticPunctuation bool   `toml:"enable_automatic_punctuation"` // Ask the service to punctuate transcripts

	// Connection management
	DialTimeoutSecs   int `toml:"dial_timeout_seconds"`   // Handshake timeout per connection attempt
	MaxDialRetries    int `toml:"max_dial_retries"`       // Connection attempts before a session open fails
	RetryIntervalSecs int `toml:"retry_interval_seconds"` // Seconds to wait between connection attempts
	CloseGraceMs      int `toml:"close_grace_ms"`         // Wait for trailing results after end-of-input before closing
}

// Client returns the recognition client settings for this section.
func (c RecognitionConfig) Client() recognition.Config {
	return recognition.Config{
		Endpoint:                   c.Endpoint,
		APIKey:                     c.APIKey,
		Encoding:                   c.Encoding,
		SampleRateHertz:            c.SampleRateHertz,
		LanguageCode:               c.LanguageCode,
		Model:                      c.Model,
		EnableAutomaticPunctuation: c.EnableAutomaticPunctuation,
		DialTimeoutSeconds:         c.DialTimeoutSecs,
		MaxDialRetries:             c.MaxDialRetries,
		RetryIntervalSeconds:       c.RetryIntervalSecs,
		CloseGraceMs:               c.CloseGraceMs,
	}
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and applies defaults. Missing
// credentials are fatal here rather than at first use.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	portsSeen := map[int]bool{c.Server.Port: true}
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	if err := c.validateRecognition(); err != nil {
		return err
	}
	if err := c.validateCallControl(); err != nil {
		return err
	}
	return c.validateRecording()
}

func (c *Config) validateRecognition() error {
	r := &c.Recognition
	if r.Endpoint == "" {
		return fmt.Errorf("recognition endpoint is required")
	}
	if r.APIKey == "" {
		return fmt.Errorf("recognition api_key is required")
	}
	if r.Encoding == "" {
		r.Encoding = "linear16"
	}
	if r.SampleRateHertz == 0 {
		r.SampleRateHertz = 8000
	}
	if r.SampleRateHertz < 0 {
		return fmt.Errorf("invalid recognition sample rate: %d", r.SampleRateHertz)
	}
	if r.LanguageCode == "" {
		r.LanguageCode = "en-US"
	}
	if r.DialTimeoutSecs == 0 {
		r.DialTimeoutSecs = 10
	}
	if r.MaxDialRetries == 0 {
		r.MaxDialRetries = 3
	}
	if r.RetryIntervalSecs == 0 {
		r.RetryIntervalSecs = 2
	}
	if r.CloseGraceMs == 0 {
		r.CloseGraceMs = 2000
	}
	return nil
}

func (c *Config) validateCallControl() error {
	cc := &c.CallControl
	if cc.AccountSID == "" {
		return fmt.Errorf("call_control account_sid is required")
	}
	if cc.AuthToken == "" {
		return fmt.Errorf("call_control auth_token is required")
	}
	if cc.StreamURL == "" {
		return fmt.Errorf("call_control stream_url is required")
	}
	if cc.RetryAttempts < 0 {
		return fmt.Errorf("invalid call_control retry_attempts: %d", cc.RetryAttempts)
	}
	if cc.RetryBackoffMs == 0 {
		cc.RetryBackoffMs = 500
	}
	return nil
}

func (c *Config) validateRecording() error {
	r := &c.Recording
	if !r.Enabled {
		return nil
	}
	if r.APIKey == "" {
		return fmt.Errorf("recording api_key is required when recording fallback is enabled")
	}
	if r.Model == "" {
		return fmt.Errorf("recording model is required when recording fallback is enabled")
	}
	return nil
}
