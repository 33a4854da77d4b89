package sim

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerLock sync.RWMutex
)

// Logger returns the kernel's logger. It is a no-op logger unless SetLogger
// was called.
func Logger() *zap.Logger {
	loggerLock.RLock()
	l := logger
	loggerLock.RUnlock()

	if l == nil {
		return zap.NewNop()
	}

	return l
}

// SetLogger replaces the kernel's logger.
func SetLogger(l *zap.Logger) {
	loggerLock.Lock()
	defer loggerLock.Unlock()

	logger = l
}
