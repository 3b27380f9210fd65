package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yourusername/fleet-api/internal/config"
)

// Init installs a JSON slog logger as the process default. With cfg.ToFile the output is
// duplicated into a rotating file.
func Init(cfg config.LogConfig) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(writer(cfg), options(cfg)))
	slog.SetDefault(logger)
	return logger
}

func writer(cfg config.LogConfig) io.Writer {
	if !cfg.ToFile || cfg.Filename == "" {
		return os.Stdout
	}
	target := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize, // megabytes
		MaxAge:     cfg.MaxAge,  // days
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	return io.MultiWriter(os.Stdout, target)
}

func options(cfg config.LogConfig) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     LevelFromString(cfg.Level),
		AddSource: cfg.IncludeSrc,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok && source != nil {
					source.File = filepath.Base(source.File)
					source.Function = strings.TrimPrefix(source.Function, "github.com/yourusername/fleet-api")
				}
			}
			return a
		},
	}
}

// LevelFromString maps a config level name to a slog level; unknown names yield info.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
