// Package logging owns logger construction for the process and the
// Logger interface the pipeline packages log through.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal structured logging surface components depend
// on. Arguments are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Useful default for tests.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, args ...interface{}) { z.s.Debugw(msg, args...) }
func (z *zapLogger) Info(msg string, args ...interface{})  { z.s.Infow(msg, args...) }
func (z *zapLogger) Warn(msg string, args ...interface{})  { z.s.Warnw(msg, args...) }
func (z *zapLogger) Error(msg string, args ...interface{}) { z.s.Errorw(msg, args...) }

// New builds the process logger. Returns the logger and a flush
// function to defer in main.
func New(debug bool) (Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return &zapLogger{s: l.Sugar()}, func() { _ = l.Sync() }, nil
}
