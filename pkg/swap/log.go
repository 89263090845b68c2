package swap

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ninjtheturtle/YT-Spotify-Swap/pkg/swap/util"
)

const (
	logDirectory = "logs"
	logFilename  = "yt-spotify-swap-latest-run.log"
)

// NewLogger provides a logger instance for the whole program: console
// output plus a per-run log file under the logs directory. Verbose
// mode lowers the level to debug.
func NewLogger(verbose bool) (*zap.SugaredLogger, error) {
	if err := util.EnsureDirExists(logDirectory); err != nil {
		return nil, fmt.Errorf("ensure log directory exists: %w", err)
	}

	logFilePath := filepath.Join(logDirectory, logFilename)

	logFile, err := os.Create(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	fileEncoderConfig := encoderConfig
	fileEncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleEncoderConfig := encoderConfig
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderConfig), zapcore.Lock(logFile), level),
	)

	logger := zap.New(core)

	return logger.Sugar(), nil
}
