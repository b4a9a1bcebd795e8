// Package logging builds the zap loggers used across the acquisition and
// verification pipelines.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats supported by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config configures a session-scoped logger.
type Config struct {
	Level  string // debug, info, warn, error (default info)
	Format string // json or text (default json)
	Quiet  bool   // -q: suppress info-level progress chatter, keep warn/error
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
}

// Validate rejects unknown levels/formats.
func (c *Config) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: invalid level: %s", c.Level)
	}
	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("logging: invalid format: %s", c.Format)
	}
	return nil
}

// New builds a *zap.Logger from cfg, writing to stderr so that stdout stays
// reserved for the tools' own status line. Quiet mode raises the effective
// level to warn regardless of cfg.Level, matching the -q switch.
func New(cfg Config) (*zap.Logger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	if cfg.Quiet && level < zap.WarnLevel {
		level = zap.WarnLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == FormatText {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want acquisition-engine logs.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// SessionFields returns the structured fields every acquire/verify log line
// in a session should carry, so grep'ing a log file by case number or
// evidence number works the same way across both tools.
func SessionFields(sessionID, caseNumber, evidenceNumber string) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if sessionID != "" {
		fields = append(fields, zap.String("session_id", sessionID))
	}
	if caseNumber != "" {
		fields = append(fields, zap.String("case_number", caseNumber))
	}
	if evidenceNumber != "" {
		fields = append(fields, zap.String("evidence_number", evidenceNumber))
	}
	return fields
}
