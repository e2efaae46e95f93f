// Package logging builds the zap.Logger used throughout tagcached, grounded
// on the functional-options logging hookup in Voskan-arena-cache's
// pkg/config.go (WithLogger).
package logging

import (
	"github.com/IvanBrykalov/tagcache/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger from a Logging config section. Unknown levels
// fall back to info; unknown encodings fall back to console.
func New(cfg config.Logging) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoding := cfg.Encoding
	if encoding != "json" {
		encoding = "console"
	}
	zcfg := zap.NewProductionConfig()
	if encoding == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = pick(encoding, zcfg.Encoding)

	return zcfg.Build()
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
