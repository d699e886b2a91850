package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"leasehub/pkg/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Logger *logrus.Logger
	mu     sync.RWMutex
)

// Initialize 初始化日志
func Initialize(cfg *config.Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.Log.FilePath != "" {
		logDir := filepath.Dir(cfg.Log.FilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}

		// 日志轮转，同时输出到文件和控制台
		rotateLogger := &lumberjack.Logger{
			Filename:   cfg.Log.FilePath,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		}
		l.SetOutput(io.MultiWriter(os.Stdout, rotateLogger))
	}

	SetLogger(l)
	return nil
}

// SetLogger 替换全局日志实例（测试中可传入静默logger）
func SetLogger(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Logger = l
}

// GetLogger 获取日志实例，未初始化时返回标准输出的默认logger
func GetLogger() *logrus.Logger {
	mu.RLock()
	l := Logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if Logger == nil {
		Logger = logrus.New()
	}
	return Logger
}

// WithLease 带租约上下文字段的日志条目
func WithLease(leaseID string, unitID uint) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"lease_id": leaseID,
		"unit_id":  unitID,
	})
}
