package cache

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	logger      *logrus.Logger
	loggerMutex sync.RWMutex

	// used by tests and packages that log before the launcher set its logger
	fallbackLogger = &logrus.Logger{
		Out:       os.Stderr,
		Formatter: &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.WarnLevel,
	}
)

// SetLogger installs the process logger, nil restores the fallback
func SetLogger(s *logrus.Logger) {
	loggerMutex.Lock()
	logger = s
	loggerMutex.Unlock()
}

// GetLogger returns the process logger. Until the launcher configured one,
// entries go to stderr at warning level so watch and storage tests stay quiet.
func GetLogger() *logrus.Logger {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()

	if logger == nil {
		return fallbackLogger
	}
	return logger
}
