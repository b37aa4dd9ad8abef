package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validPayload = `[
  {
    "id": "promo-a",
    "scope": "mobileapp://com.example.app/home",
    "scopeDetails": {"rank": 1},
    "items": [
      {"id": "item-1", "schema": "json-content", "data": {"key": "value"}}
    ]
  }
]`

func TestValidatePayload(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		result := validatePayload("payload.json", []byte(validPayload))
		assert.True(t, result.Valid)
		assert.Empty(t, result.Issues)
	})

	t.Run("bad surface scheme", func(t *testing.T) {
		payload := `[{"id": "p", "scope": "https://nope", "items": []}]`
		result := validatePayload("payload.json", []byte(payload))
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Issues)
	})

	t.Run("unknown schema tag", func(t *testing.T) {
		payload := `[{"id": "p", "scope": "mobileapp://com.example.app", "items": [
			{"id": "i", "schema": "mystery"}
		]}]`
		result := validatePayload("payload.json", []byte(payload))
		assert.False(t, result.Valid)
	})

	t.Run("missing proposition id", func(t *testing.T) {
		payload := `[{"scope": "mobileapp://com.example.app", "items": []}]`
		result := validatePayload("payload.json", []byte(payload))
		assert.False(t, result.Valid)
	})

	t.Run("not json at all", func(t *testing.T) {
		result := validatePayload("payload.json", []byte("{{{"))
		assert.False(t, result.Valid)
	})
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid file exits clean", func(t *testing.T) {
		path := writeFile(t, "payload.json", validPayload)

		var out bytes.Buffer
		cmd := NewRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"validate", path, "--format", "json"})
		require.NoError(t, cmd.Execute())

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("invalid file exits with failure code", func(t *testing.T) {
		path := writeFile(t, "payload.json", `[{"scope": "bad"}]`)

		var out bytes.Buffer
		cmd := NewRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"validate", path})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("missing file is a command error", func(t *testing.T) {
		var out bytes.Buffer
		cmd := NewRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"validate", "does-not-exist.json"})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("bad format flag rejected", func(t *testing.T) {
		cmd := NewRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"validate", "x.json", "--format", "xml"})
		assert.Error(t, cmd.Execute())
	})
}
