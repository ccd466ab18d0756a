package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("AUDIOSTREAM_CONFIG", "")

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{
			name:     "valid",
			body:     "stream:\n  sampleRate: 44100\n",
			wantCode: 0,
			wantOut:  "is valid",
		},
		{
			name:     "unknown_key",
			body:     "stream:\n  sampleRat: 44100\n",
			wantCode: 1,
			wantErr:  "sampleRat",
		},
		{
			name:     "invalid_value",
			body:     "session:\n  drainMode: sometimes\n",
			wantCode: 1,
			wantErr:  "session.drainMode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runConfigCLI([]string{"validate", "-f", writeConfig(t, tt.body)}, &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code, stderr.String())
			assert.Contains(t, stdout.String(), tt.wantOut)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}

func TestConfigDump(t *testing.T) {
	t.Setenv("AUDIOSTREAM_CONFIG", "")
	t.Setenv("AUDIOSTREAM_EVENTS_REDIS_PASSWORD", "hunter2")
	path := writeConfig(t, "stream:\n  channels: 1\n")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, runConfigCLI([]string{"dump", "-f", path}, &stdout, &stderr), stderr.String())

	var dumped struct {
		Stream struct {
			Channels int `yaml:"channels"`
		} `yaml:"stream"`
		Events struct {
			Password string `yaml:"password"`
		} `yaml:"events"`
	}
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &dumped))
	assert.Equal(t, 1, dumped.Stream.Channels)
	assert.Equal(t, "***", dumped.Events.Password)
	assert.NotContains(t, stdout.String(), "hunter2")

	stdout.Reset()
	require.Equal(t, 0, runConfigCLI([]string{"dump", "-f", path, "--format=json"}, &stdout, &stderr))
	assert.True(t, json.Valid(stdout.Bytes()))
}

func TestConfigCLI_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, runConfigCLI(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	assert.Equal(t, 2, runConfigCLI([]string{"explode"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown subcommand")

	stderr.Reset()
	assert.Equal(t, 2, runConfigCLI([]string{"dump", "--format=toml"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unsupported format")
}
