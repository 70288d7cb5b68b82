package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/keepmind9/wirebot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidate_EnvironmentOnly(t *testing.T) {
	t.Setenv(config.EnvEmail, "bot@example.com")
	t.Setenv(config.EnvPassword, "secret-password")

	result := validate("")
	assert.True(t, result.Valid)
	assert.Equal(t, "(environment)", result.Config)
	assert.Equal(t, config.BackendProduction, result.Backend)
	assert.NotEmpty(t, result.RESTURL)
	assert.Empty(t, result.Errors)
}

func TestValidate_MissingCredentials(t *testing.T) {
	t.Setenv(config.EnvEmail, "")
	t.Setenv(config.EnvPassword, "")

	result := validate("")
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "WIRE_EMAIL")
}

func TestValidate_ConfigFile(t *testing.T) {
	t.Setenv(config.EnvEmail, "")
	t.Setenv(config.EnvPassword, "")
	t.Setenv("TEST_WIRE_PASS", "from-env")

	path := writeConfig(t, `
wire:
  email: bot@example.com
  password: ${TEST_WIRE_PASS}
  backend: custom
  rest_url: https://wire.example.com/
  ws_url: wss://wire.example.com/
  client_type: temporary
http:
  enabled: true
  port: 9090
`)

	result := validate(path)
	require.True(t, result.Valid, result.Errors)
	assert.Equal(t, path, result.Config)
	assert.Equal(t, "https://wire.example.com", result.RESTURL)
	assert.Equal(t, "wss://wire.example.com", result.WebSocketURL)
	assert.Contains(t, result.Warnings, "Temporary client registers a new device on every start")
}

func TestValidate_UnknownBackend(t *testing.T) {
	t.Setenv(config.EnvEmail, "bot@example.com")
	t.Setenv(config.EnvPassword, "secret-password")

	result := validate(writeConfig(t, "wire:\n  backend: moon\n"))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "moon")
}

func TestOutputValidationResult(t *testing.T) {
	t.Run("valid text", func(t *testing.T) {
		var buf bytes.Buffer
		outputValidationResult(&buf, ValidationResult{
			Valid:    true,
			Config:   "config.yaml",
			Backend:  "production",
			Warnings: []string{"something to look at"},
		}, false)
		assert.Contains(t, buf.String(), "Configuration is valid")
		assert.Contains(t, buf.String(), "something to look at")
	})

	t.Run("invalid text", func(t *testing.T) {
		var buf bytes.Buffer
		outputValidationResult(&buf, ValidationResult{Config: "config.yaml", Errors: []string{"broken"}}, false)
		assert.Contains(t, buf.String(), "validation failed")
		assert.Contains(t, buf.String(), "broken")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		outputValidationResult(&buf, ValidationResult{Valid: true, Config: "config.yaml"}, true)

		var decoded ValidationResult
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.True(t, decoded.Valid)
		assert.Equal(t, "config.yaml", decoded.Config)
	})
}
