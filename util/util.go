package util

import (
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/constraints"
)

const Debug uint64 = 1

var logger = zap.NewNop().Sugar()

// SetLogger routes DPrintf output to l.
func SetLogger(l *zap.Logger) {
	logger = l.Sugar()
}

func Logger() *zap.SugaredLogger {
	return logger
}

// NewLogger builds a console logger at the named level ("debug", "info", ...).
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		logger.Debugf(format, a...)
	}
}

// Rollback reports the failure of an undo step run after err. The result still
// matches err with errors.Is.
func Rollback(err error, undo error) error {
	if undo == nil {
		return err
	}
	DPrintf(1, "rollback after %v: %v\n", err, undo)
	return errors.Join(err, undo)
}

func RoundUp[T constraints.Unsigned](n T, sz T) T {
	return (n + sz - 1) / sz
}

func Min[T constraints.Ordered](n T, m T) T {
	if n < m {
		return n
	} else {
		return m
	}
}

func Max[T constraints.Ordered](n T, m T) T {
	if n > m {
		return n
	}
	return m
}

func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
