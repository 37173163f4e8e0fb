package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tagvorto/internal/util"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogAdapter routes gorm's logging through the process logger so query
// warnings carry the same format as the rest of the service.
type gormLogAdapter struct {
	level gormlogger.LogLevel
}

func newGormLogger() gormlogger.Interface {
	return &gormLogAdapter{level: gormlogger.Warn}
}

func (l *gormLogAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogAdapter) Info(_ context.Context, format string, args ...any) {
	if l.level >= gormlogger.Info {
		util.LogInfo(format, args...)
	}
}

func (l *gormLogAdapter) Warn(_ context.Context, format string, args ...any) {
	if l.level >= gormlogger.Warn {
		util.LogWarn(format, args...)
	}
}

func (l *gormLogAdapter) Error(_ context.Context, format string, args ...any) {
	if l.level >= gormlogger.Error {
		util.LogError(format, args...)
	}
}

func (l *gormLogAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error &&
		!errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, gorm.ErrDuplicatedKey):
		sql, rows := fc()
		util.LogError("Query failed after %v (rows=%d): %v [%s]", elapsed, rows, err, sql)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		util.LogWarn("Slow query %v (rows=%d): %s", elapsed, rows, sql)
	}
}
