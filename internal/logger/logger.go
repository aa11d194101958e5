// Package logger provides the leveled, structured logger used throughout
// dfs-fuse. It wraps log/slog with two extra severities the standard
// library doesn't have (TRACE below DEBUG, OFF above ERROR) and a
// text/json output switch, matching the way FUSE daemons are usually run:
// human-readable text on a terminal, JSON when shipped to a log collector.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names accepted by InitLogFile/setLoggingLevel.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// Custom slog levels. slog.LevelDebug/Warn/Error already sit at -4/4/8;
// Trace and Off extend the range on either side.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelOff   slog.Level = 12
)

// asyncBufferSize bounds how many pending lines a file-backed logger will
// queue before it starts dropping messages rather than blocking a caller.
const asyncBufferSize = 1000

// RotateConfig controls lumberjack's rotation of the log file.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig is used when a caller doesn't care about rotation
// tuning.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// Config is the subset of CLI/mount options that determine how logging is
// set up.
type Config struct {
	FilePath string
	Severity string
	Format   string
	Rotate   RotateConfig
}

// loggerFactory remembers the settings the active defaultLogger was built
// from, so SetLogFormat can rebuild the handler without losing them.
type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig RotateConfig
}

var (
	defaultLogger        *slog.Logger
	defaultLoggerFactory *loggerFactory
)

func init() {
	defaultLoggerFactory = &loggerFactory{
		sysWriter:       os.Stderr,
		format:          "text",
		level:           INFO,
		logRotateConfig: DefaultRotateConfig(),
	}
	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
}

// InitLogFile points the default logger at a file, rotated through
// lumberjack, replacing the stderr logger set up at package init. Passing
// an empty FilePath leaves logging on stderr.
func InitLogFile(cfg Config) error {
	factory := &loggerFactory{
		format:          cfg.Format,
		level:           cfg.Severity,
		logRotateConfig: cfg.Rotate,
	}

	var w io.Writer
	if cfg.FilePath == "" {
		factory.sysWriter = os.Stderr
		w = os.Stderr
	} else {
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("logger: open %s: %w", cfg.FilePath, err)
		}
		factory.file = f
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.Rotate.MaxFileSizeMB,
			MaxBackups: cfg.Rotate.BackupFileCount,
			Compress:   cfg.Rotate.Compress,
		}
		w = NewAsyncLogger(rotator, asyncBufferSize)
	}

	programLevel := new(slog.LevelVar)
	setLoggingLevel(factory.level, programLevel)

	defaultLoggerFactory = factory
	defaultLogger = slog.New(factory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// SetLogFormat switches the active logger between "text" and "json" (any
// other value, including empty, behaves as "json") without disturbing the
// configured severity or output file.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format

	w := defaultLoggerFactory.sysWriter
	if defaultLoggerFactory.file != nil {
		w = defaultLoggerFactory.file
	}
	if w == nil {
		w = os.Stderr
	}

	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case TRACE:
		programLevel.Set(LevelTrace)
	case DEBUG:
		programLevel.Set(LevelDebug)
	case WARNING:
		programLevel.Set(LevelWarn)
	case ERROR:
		programLevel.Set(LevelError)
	case OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(slog.LevelInfo)
	}
}

// createJsonOrTextHandler builds the slog.Handler for the given writer,
// renaming slog's built-in attributes to the severity/timestamp shape this
// project's logs use and prefixing every message with prefix.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	asJSON := f.format != "text"

	replace := func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) != 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			t := a.Value.Time()
			if asJSON {
				return slog.Attr{Key: "timestamp", Value: slog.GroupValue(
					slog.Int64("seconds", t.Unix()),
					slog.Int64("nanos", int64(t.Nanosecond())),
				)}
			}
			return slog.String(slog.TimeKey, t.Format("2006/01/02 15:04:05.000000"))
		case slog.LevelKey:
			lvl, _ := a.Value.Any().(slog.Level)
			return slog.String("severity", severityName(lvl))
		case slog.MessageKey:
			return slog.String("message", prefix+a.Value.String())
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replace}
	if asJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return TRACE
	case l < slog.LevelInfo:
		return DEBUG
	case l < LevelWarn:
		return INFO
	case l < LevelError:
		return WARNING
	default:
		return ERROR
	}
}

func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	defaultLogger.Log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}
