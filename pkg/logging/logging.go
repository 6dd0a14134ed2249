// Package logging builds the crank's structured logger: JSON to stdout
// and, when a log directory is configured, a second JSON stream appended
// to <dir>/crank.log. Grounded on pkg/util/log.go's
// NewLoggerWithFile.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger. When logDirectory is empty, only
// stdout is configured. debug lowers the level to Debug; otherwise Info.
func New(logDirectory string, debug bool) (*zap.SugaredLogger, func(), error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	closeFile := func() {}
	if logDirectory != "" {
		if err := os.MkdirAll(logDirectory, 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		logPath := filepath.Join(logDirectory, "crank.log")
		file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
		closeFile = func() { _ = file.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), func() { _ = logger.Sync(); closeFile() }, nil
}
