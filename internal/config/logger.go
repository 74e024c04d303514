package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a production logger when ENVIRONMENT=production and a
// development logger otherwise, both at LOG_LEVEL
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if c.IsProduction() {
		zc = zap.NewProductionConfig()
	}

	if c.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
		}
		zc.Level = level
	}
	return zc.Build()
}
