// Package logger is the error logger of the query layer: a thin zerolog
// wrapper with optional size-rotated file output. Every call is fire and
// forget.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields are extra key/value pairs attached to one log line.
type Fields = map[string]interface{}

// Logger wraps zerolog.
type Logger struct {
	zlog zerolog.Logger
	file io.Closer
}

// Config holds logger configuration
type Config struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	TimeFormat string `mapstructure:"time_format"` // rfc3339, unix, unixms, unixmicro

	// File, when set, sends output to a size-rotated log file instead of Output.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`

	Output io.Writer `mapstructure:"-"`
}

// DefaultConfig returns production-ready defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Output:     os.Stderr,
	}
}

// New creates a logger from cfg. A nil cfg means DefaultConfig. The level
// applies to this logger and its children only.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	zerolog.TimeFieldFormat = timeFormat(cfg.TimeFormat)

	l := &Logger{}
	var out io.Writer
	switch {
	case cfg.File != "":
		f := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		out, l.file = f, f
	case cfg.Output != nil:
		out = cfg.Output
	default:
		out = os.Stderr
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.File != ""}
	}

	l.zlog = zerolog.New(out).Level(level(cfg.Level)).With().Timestamp().Logger()
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// WithContext returns a copy of ctx carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext returns the logger stored in ctx by WithContext, or the global
// logger when there is none.
func FromContext(ctx context.Context) *Logger {
	zl := zerolog.Ctx(ctx)
	if zl.GetLevel() == zerolog.Disabled {
		return L()
	}
	return &Logger{zlog: *zl}
}

// With starts a child logger carrying extra fields.
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With(), file: l.file}
}

// Context accumulates the fields of a child logger.
type Context struct {
	ctx  zerolog.Context
	file io.Closer
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Int(key string, val int) *Context {
	c.ctx = c.ctx.Int(key, val)
	return c
}

func (c *Context) Bool(key string, val bool) *Context {
	c.ctx = c.ctx.Bool(key, val)
	return c
}

// Logger returns the child. It shares the parent's file; closing either
// closes both.
func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger(), file: c.file}
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func (l *Logger) DebugWith(msg string, fields Fields) {
	emit(l.zlog.Debug(), msg, fields)
}

func (l *Logger) InfoWith(msg string, fields Fields) {
	emit(l.zlog.Info(), msg, fields)
}

// WarnWith logs msg at warn level with err under the "error" key.
func (l *Logger) WarnWith(msg string, err error, fields Fields) {
	emit(l.zlog.Warn().Err(err), msg, fields)
}

// ErrorWith logs msg at error level with err under the "error" key.
func (l *Logger) ErrorWith(msg string, err error, fields Fields) {
	emit(l.zlog.Error().Err(err), msg, fields)
}

func emit(e *zerolog.Event, msg string, fields Fields) {
	if e == nil {
		return
	}
	e.Fields(fields).Msg(msg)
}

func level(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func timeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

var global = Nop()

// L returns the process-wide logger, a Nop until SetGlobal is called.
func L() *Logger {
	return global
}

// SetGlobal replaces the process-wide logger. nil restores the Nop.
func SetGlobal(l *Logger) {
	if l == nil {
		l = Nop()
	}
	global = l
}
