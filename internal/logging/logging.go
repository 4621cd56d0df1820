// Package logging builds the zap logger used by mzpick.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity is the amount of info that is printed
type Verbosity int

const (
	VerbosityDefault Verbosity = iota
	VerbositySilent
	VerbosityVerbose
)

// Level returns the minimal level that is logged at verbosity v
func (v Verbosity) Level() zapcore.Level {
	switch v {
	case VerbositySilent:
		return zapcore.ErrorLevel
	case VerbosityVerbose:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

type config struct {
	level   zapcore.Level
	out     zapcore.WriteSyncer
	json    bool
	options []zap.Option
}

// LoggerOption configures the logger returned by New
type LoggerOption func(*config)

// WithVerbosity sets the log level from a verbosity
func WithVerbosity(v Verbosity) LoggerOption {
	return func(c *config) {
		c.level = v.Level()
	}
}

// WithLevel sets the log level
func WithLevel(l zapcore.Level) LoggerOption {
	return func(c *config) {
		c.level = l
	}
}

// WithOutput writes log entries to w instead of stderr
func WithOutput(w io.Writer) LoggerOption {
	return func(c *config) {
		c.out = zapcore.AddSync(w)
	}
}

// WithJSON selects the JSON encoder instead of the console encoder
func WithJSON() LoggerOption {
	return func(c *config) {
		c.json = true
	}
}

// WithZapOptions passes options to zap.New
func WithZapOptions(opts ...zap.Option) LoggerOption {
	return func(c *config) {
		c.options = append(c.options, opts...)
	}
}

// New returns a logger. Without options it writes info and above to stderr
// with the console encoder.
func New(options ...LoggerOption) *zap.Logger {
	c := config{
		level: zapcore.InfoLevel,
		out:   zapcore.Lock(os.Stderr),
	}
	for _, option := range options {
		option(&c)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if c.json {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	core := zapcore.NewCore(encoder, c.out, zap.NewAtomicLevelAt(c.level))
	return zap.New(core, c.options...)
}
