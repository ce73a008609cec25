package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultNameFilter is the advertised-name substring preferred during discovery.
const DefaultNameFilter = "Z407"

// DefaultScanTimeout bounds a discovery scan.
const DefaultScanTimeout = 10 * time.Second

// Verbose enables debug output when true
var Verbose bool

// Log is the process-wide logger. Diagnostics go here; user-facing progress goes to stdout.
var Log = NewLogger(os.Stderr, logrus.WarnLevel)

// Settings holds the runtime options shared by every command.
type Settings struct {
	NameFilter  string
	ScanTimeout time.Duration
	LogLevel    string
	Verbose     bool
}

// DefaultSettings returns the settings used when no flag, env var or config file overrides them.
func DefaultSettings() Settings {
	return Settings{
		NameFilter:  DefaultNameFilter,
		ScanTimeout: DefaultScanTimeout,
	}
}

// NewLogger creates a logger writing RFC3339-timestamped text to w.
func NewLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// ParseLevel maps a --log-level value to a logrus level.
// An empty string yields debug when verbose is set and warn otherwise.
func ParseLevel(level string, verbose bool) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "":
		if verbose {
			return logrus.DebugLevel, nil
		}
		return logrus.WarnLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.WarnLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// Apply installs s as the process settings: it sets Verbose and the level of Log.
func (s Settings) Apply() error {
	level, err := ParseLevel(s.LogLevel, s.Verbose)
	if err != nil {
		return err
	}
	Verbose = s.Verbose || level == logrus.DebugLevel
	Log.SetLevel(level)
	return nil
}

// Debugf prints debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		Log.Debugf(format, args...)
	}
}
