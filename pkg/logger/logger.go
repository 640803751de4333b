// Package logger builds the process zap logger from configuration.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"card-tracker-backend/pkg/config"
)

var (
	global   *zap.Logger = zap.NewNop()
	globalMu sync.RWMutex
)

// New 根据环境创建 logger：生产环境输出 JSON，其余环境输出彩色控制台格式
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if cfg.Debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if !cfg.IsProduction() {
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return zc.Build()
}

// Init builds the logger and installs it as the global one.
func Init(cfg *config.Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	SetGlobal(l)
	return l, nil
}

// SetGlobal replaces the global logger.
func SetGlobal(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// L returns the global logger; a no-op logger until Init is called.
func L() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
