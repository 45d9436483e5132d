package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
[server]
port = 9090
host = "127.0.0.1"

[logging]
level = "debug"
format = "json"

[recognition]
endpoint = "wss://speech.example.com/v1/stream"
api_key = "sk-test"
language_code = "es-ES"
model = "phone_call"
enable_automatic_punctuation = true

[call_control]
account_sid = "ACxxxx"
auth_token = "secret"
stream_url = "wss://bridge.example.com/media"
reply_template = "You said: {transcript}"
restart_stream = true
voices = ["Polly.Joanna", "alice"]

[recording]
enabled = true
api_key = "gk-test"
model = "gemini-2.0-flash"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "wss://speech.example.com/v1/stream", cfg.Recognition.Endpoint)
	assert.Equal(t, "es-ES", cfg.Recognition.LanguageCode)
	assert.Equal(t, []string{"Polly.Joanna", "alice"}, cfg.CallControl.Voices)
	assert.True(t, cfg.Recording.Enabled)
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[recognition]
endpoint = "wss://speech.example.com/v1/stream"
api_key = "sk-test"

[call_control]
account_sid = "ACxxxx"
auth_token = "secret"
stream_url = "wss://bridge.example.com/media"
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "linear16", cfg.Recognition.Encoding)
	assert.Equal(t, 8000, cfg.Recognition.SampleRateHertz)
	assert.Equal(t, "en-US", cfg.Recognition.LanguageCode)
	assert.Equal(t, 2000, cfg.Recognition.CloseGraceMs)
	assert.Equal(t, 500, cfg.CallControl.RetryBackoffMs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "not [valid toml"))
	require.Error(t, err)
}

func TestLoadWithFallbackPrefersGivenPath(t *testing.T) {
	path := writeConfig(t, validTOML)
	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing recognition endpoint",
			mutate:  func(c *Config) { c.Recognition.Endpoint = "" },
			wantErr: "recognition endpoint",
		},
		{
			name:    "missing recognition api key",
			mutate:  func(c *Config) { c.Recognition.APIKey = "" },
			wantErr: "recognition api_key",
		},
		{
			name:    "missing account sid",
			mutate:  func(c *Config) { c.CallControl.AccountSID = "" },
			wantErr: "account_sid",
		},
		{
			name:    "missing auth token",
			mutate:  func(c *Config) { c.CallControl.AuthToken = "" },
			wantErr: "auth_token",
		},
		{
			name:    "missing stream url",
			mutate:  func(c *Config) { c.CallControl.StreamURL = "" },
			wantErr: "stream_url",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "duplicate additional port",
			mutate:  func(c *Config) { c.Server.AdditionalPorts = []int{9090} },
			wantErr: "duplicate port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "recording enabled without key",
			mutate:  func(c *Config) { c.Recording.APIKey = "" },
			wantErr: "recording api_key",
		},
		{
			name:    "recording enabled without model",
			mutate:  func(c *Config) { c.Recording.Model = "" },
			wantErr: "recording model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validTOML))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
