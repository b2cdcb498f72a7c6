package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from a .env file (when present), the
// YAML config file, environment variables, and built-in defaults.
func Load(opts LoaderOptions) (Config, error) {
	// Local .env files hold tokens during development; absence is fine.
	_ = godotenv.Load()

	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "ca"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "CA"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return expandEnvVars(cfg), nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	for name, project := range cfg.Projects {
		project.URL = expandEnvString(project.URL)
		project.LocalPath = expandEnvString(project.LocalPath)
		project.BrowseURL = expandEnvString(project.BrowseURL)
		cfg.Projects[name] = project
	}

	cfg.Jira.CSVDir = expandEnvString(cfg.Jira.CSVDir)
	cfg.Jira.BrowseURL = expandEnvString(cfg.Jira.BrowseURL)
	cfg.GitHub.Token = expandEnvString(cfg.GitHub.Token)
	cfg.Paths.InputsDir = expandEnvString(cfg.Paths.InputsDir)
	cfg.Paths.OutputsDir = expandEnvString(cfg.Paths.OutputsDir)
	cfg.Paths.DownloadsDir = expandEnvString(cfg.Paths.DownloadsDir)
	cfg.Store.Path = expandEnvString(cfg.Store.Path)
	cfg.Observability.Logging.Level = expandEnvString(cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = expandEnvString(cfg.Observability.Logging.Format)

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// Scan bounds
	v.SetDefault("scan.maxCommitsPerBranch", 50000)
	v.SetDefault("scan.maxCommitsPerIssue", 5)
	v.SetDefault("scan.messageLimit", 300)

	// Match defaults: the reference dataset tracks Java sources.
	v.SetDefault("match.extensions", []string{".java"})

	// Working directories
	v.SetDefault("paths.inputsDir", "inputs")
	v.SetDefault("paths.outputsDir", "outputs")
	v.SetDefault("paths.downloadsDir", filepath.Join("downloads", "logs"))

	// Jira defaults
	v.SetDefault("jira.csvDir", filepath.Join("inputs", "logs"))
	v.SetDefault("jira.browseURL", "https://issues.apache.org/jira/browse")

	// GitHub defaults
	v.SetDefault("github.token", "${GITHUB_TOKEN}")
	v.SetDefault("github.maxIssues", 0)
	v.SetDefault("github.requestsPerSecond", 1.0)

	// Download defaults
	v.SetDefault("download.maxRetries", 3)
	v.SetDefault("download.timeout", "30s")
	v.SetDefault("download.userAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	// Store defaults
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", defaultStorePath())

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "human")

	// Reference projects and their tag conventions
	v.SetDefault("projects.hbase.url", "https://github.com/apache/hbase.git")
	v.SetDefault("projects.hbase.localPath", filepath.Join("repos", "hbase"))
	v.SetDefault("projects.hbase.browseURL", "https://github.com/apache/hbase")
	v.SetDefault("projects.hbase.tagPrefixes", []string{"rel/", "REL/"})
	v.SetDefault("projects.zookeeper.url", "https://github.com/apache/zookeeper.git")
	v.SetDefault("projects.zookeeper.localPath", filepath.Join("repos", "zookeeper"))
	v.SetDefault("projects.zookeeper.browseURL", "https://github.com/apache/zookeeper")
	v.SetDefault("projects.zookeeper.tagPrefixes", []string{"release-", "RELEASE-"})
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./attributions.db"
	}
	return filepath.Join(home, ".config", "ca", "attributions.db")
}
