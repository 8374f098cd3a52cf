// Package observability holds the process-wide logging setup.
//
// Commands log through CLILogger, a zap logger tuned for terminal use:
// console encoding without timestamps by default, structured JSON when
// requested for machine consumption.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by all CLI commands. It defaults to a
// no-op logger so packages can log before InitCLILogger runs (tests,
// early init paths).
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for the process.
//
// level is a zap level name (debug, info, warn, error); unknown values
// fall back to info. jsonOutput switches from human console encoding to
// one JSON object per line on stderr.
func InitCLILogger(level string, jsonOutput bool) {
	var lvl zapcore.Level
	if err := lvl.Set(strings.ToLower(strings.TrimSpace(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	var enc zapcore.Encoder
	if jsonOutput {
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		// Terminal output: message first, no timestamps.
		encCfg.TimeKey = ""
		encCfg.CallerKey = ""
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core)
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
