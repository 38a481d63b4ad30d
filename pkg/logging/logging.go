// Package logging configures the process-wide logrus instance for the
// example binaries. Library packages take a *logrus.Entry and never
// touch global state themselves.
package logging

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const defLogLevel = logrus.InfoLevel

// Setup applies level and format to the default logrus instance.
// Format is "text" or "json"; an empty level string keeps the default.
func Setup(level string, format string) error {
	lvl := defLogLevel

	if level != "" {
		var err error

		lvl, err = logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("unknown log_level %q: %w", level, err)
		}
	}

	logrus.SetLevel(lvl)

	switch format {
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		return fmt.Errorf("unknown log_format %q", format)
	}

	return nil
}
