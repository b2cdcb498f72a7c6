package observability

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/config"
)

const (
	// MaxLoggedTextLength is the maximum length of free-form text (commit
	// messages, issue summaries) to include in logs. Longer text is truncated
	// to keep log lines readable and to avoid shipping whole commit bodies to
	// log aggregators.
	MaxLoggedTextLength = 200
)

// NewLogger builds the application logger from configuration. Unknown levels
// fall back to info rather than failing startup; a bad log level should never
// stop an attribution run.
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, PadLevelText: true})
	}

	return logger
}

// TruncateForLogging safely truncates free-form text for logging purposes.
// Returns the first MaxLoggedTextLength characters plus a truncation
// indicator if truncated.
func TruncateForLogging(text string) string {
	if len(text) <= MaxLoggedTextLength {
		return text
	}
	return text[:MaxLoggedTextLength] + fmt.Sprintf("... [truncated, total length=%d bytes]", len(text))
}

// RedactURLSecrets redacts API keys and other secrets from URLs in error
// messages. Attachment and API URLs can carry credentials in query
// parameters, and download failures log the URL that failed.
//
// Example:
//
//	input:  "https://api.example.com/endpoint?key=secret123&foo=bar"
//	output: "https://api.example.com/endpoint?key=[REDACTED]&foo=bar"
func RedactURLSecrets(text string) string {
	if text == "" {
		return text
	}

	patterns := []string{
		`key=([^&"\s]+)`,
		`apiKey=([^&"\s]+)`,
		`api_key=([^&"\s]+)`,
		`token=([^&"\s]+)`,
		`access_token=([^&"\s]+)`,
	}

	result := text
	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		paramName := pattern[:len(pattern)-len(`=([^&"\s]+)`)]
		result = re.ReplaceAllString(result, paramName+"=[REDACTED]")
	}

	return result
}
