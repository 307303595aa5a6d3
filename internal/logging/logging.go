// Package logging configures the process-wide structured logger.
//
// lore is a CLI whose stdout is consumed by agents, so logs always go to
// stderr. The default level is warn; --verbose lowers it to debug.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger writing console-encoded output to stderr.
func New(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // timestamps add noise on an interactive CLI
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// Nop returns a logger that discards everything. Used as the default in
// library types so callers that don't care about logging pass nothing.
func Nop() *zap.Logger {
	return zap.NewNop()
}
