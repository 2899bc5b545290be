package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger builds the logger for the configured level. Logs always go to stderr so
// they never mix with the MCP stdio stream. The development encoder is meant for
// terminals; everything else gets JSON.
func (c *Config) Logger(development bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
