package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/moyoez/splitsend-go/types"
)

var DefaultLogger = log.Default()

var logFile *os.File

func InitLogger() {
	DefaultLogger.SetTimeFormat("2006-01-02 15:04:05")
	DefaultLogger.SetReportCaller(true)
}

// ApplyLogConfig sets level, formatter and the optional log file.
func ApplyLogConfig(cfg types.LogConfig) error {
	SetLogMode(cfg.Mode)

	switch strings.ToLower(cfg.Format) {
	case "json":
		DefaultLogger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		DefaultLogger.SetFormatter(log.LogfmtFormatter)
	default:
		DefaultLogger.SetFormatter(log.TextFormatter)
	}

	if cfg.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	CloseLogFile()
	logFile = f
	DefaultLogger.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// SetLogMode maps dev|prod|none to a level.
func SetLogMode(mode string) {
	switch strings.ToLower(mode) {
	case "", "dev":
		DefaultLogger.SetLevel(log.DebugLevel)
	case "prod":
		DefaultLogger.SetLevel(log.InfoLevel)
	case "none":
		DefaultLogger.SetLevel(log.FatalLevel)
	default:
		DefaultLogger.Warnf("Unknown log mode %q, using debug level", mode)
		DefaultLogger.SetLevel(log.DebugLevel)
	}
}

func CloseLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		DefaultLogger.Errorf("Failed to close log file: %v", err)
	}
	logFile = nil
}
