package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvString(t *testing.T) {
	// Set test environment variables
	os.Setenv("TEST_API_KEY", "secret-key-123")
	os.Setenv("TEST_PATH", "/path/to/data")
	defer os.Unsetenv("TEST_API_KEY")
	defer os.Unsetenv("TEST_PATH")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "expand ${VAR} syntax",
			input:    "${TEST_API_KEY}",
			expected: "secret-key-123",
		},
		{
			name:     "expand $VAR syntax",
			input:    "$TEST_API_KEY",
			expected: "secret-key-123",
		},
		{
			name:     "expand in middle of string",
			input:    "key:${TEST_API_KEY}:end",
			expected: "key:secret-key-123:end",
		},
		{
			name:     "expand multiple variables",
			input:    "${TEST_API_KEY}:${TEST_PATH}",
			expected: "secret-key-123:/path/to/data",
		},
		{
			name:     "leave non-existent var unchanged",
			input:    "${NONEXISTENT_VAR}",
			expected: "${NONEXISTENT_VAR}",
		},
		{
			name:     "handle empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "handle string without variables",
			input:    "plain-text",
			expected: "plain-text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("GITHUB_API_TOKEN", "gh-test-123")
	os.Setenv("REPO_ROOT", "/srv/mirrors")
	defer os.Unsetenv("GITHUB_API_TOKEN")
	defer os.Unsetenv("REPO_ROOT")

	cfg := Config{
		Projects: map[string]ProjectConfig{
			"zookeeper": {
				URL:       "https://github.com/apache/zookeeper.git",
				LocalPath: "${REPO_ROOT}/zookeeper",
				BrowseURL: "https://github.com/apache/zookeeper",
			},
		},
		GitHub: GitHubConfig{
			Token: "${GITHUB_API_TOKEN}",
		},
	}

	expanded := expandEnvVars(cfg)

	assert.Equal(t, "/srv/mirrors/zookeeper", expanded.Projects["zookeeper"].LocalPath)
	assert.Equal(t, "gh-test-123", expanded.GitHub.Token)
}

func TestExpandEnvVars_Paths(t *testing.T) {
	os.Setenv("DATA_DIR", "/data")
	defer os.Unsetenv("DATA_DIR")

	cfg := Config{
		Jira: JiraConfig{CSVDir: "${DATA_DIR}/inputs/logs"},
		Paths: PathsConfig{
			InputsDir:    "${DATA_DIR}/inputs",
			OutputsDir:   "${DATA_DIR}/outputs",
			DownloadsDir: "${DATA_DIR}/downloads",
		},
		Store: StoreConfig{Path: "${DATA_DIR}/attributions.db"},
	}

	expanded := expandEnvVars(cfg)

	assert.Equal(t, "/data/inputs/logs", expanded.Jira.CSVDir)
	assert.Equal(t, "/data/inputs", expanded.Paths.InputsDir)
	assert.Equal(t, "/data/outputs", expanded.Paths.OutputsDir)
	assert.Equal(t, "/data/downloads", expanded.Paths.DownloadsDir)
	assert.Equal(t, "/data/attributions.db", expanded.Store.Path)
}

func TestExpandEnvVars_ObservabilityConfig(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	cfg := Config{
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "${LOG_LEVEL}",
				Format: "${LOG_FORMAT}",
			},
		},
	}

	expanded := expandEnvVars(cfg)

	assert.Equal(t, "debug", expanded.Observability.Logging.Level)
	assert.Equal(t, "json", expanded.Observability.Logging.Format)
}

func TestLocateConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("paths:\n  outputsDir: out\n"), 0o600))

	found := locateConfigFile("ca", []string{dir})
	assert.Equal(t, path, found)

	missing := locateConfigFile("ca", []string{t.TempDir()})
	assert.Equal(t, "", missing)
}

func TestDefaultStorePathFallsBackToRelative(t *testing.T) {
	// UserHomeDir consults $HOME on unix.
	t.Setenv("HOME", "")

	assert.Equal(t, "./attributions.db", defaultStorePath())
}
