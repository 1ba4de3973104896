package log

import (
	"io"
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache
var defaultLoggerCacheExpiry = 6 * time.Hour

// swapped out by tests
var logDestination io.Writer = os.Stderr

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// Permanently add context to the logger. Any future logging for this Job ID will include this context
func AddContext(jobID string, keyvals ...interface{}) {
	_ = loggerCache.Add(jobID, kitlog.With(getLogger(jobID), keyvals...), defaultLoggerCacheExpiry)
}

func Log(jobID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(jobID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// Log in situations where we don't have access to the Job ID.
// Should be used sparingly and with as much context inserted into the message as possible
func LogNoJobID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(jobID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(jobID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

func getLogger(jobID string) kitlog.Logger {
	logger, found := loggerCache.Get(jobID)
	if found {
		return logger.(kitlog.Logger)
	}

	newLogger := kitlog.With(newLogger(), "job_id", jobID)
	err := loggerCache.Add(jobID, newLogger, defaultLoggerCacheExpiry)
	if err != nil {
		_ = newLogger.Log("msg", "error adding logger to cache", "job_id", jobID)
	}
	return newLogger
}

func newLogger() kitlog.Logger {
	newLogger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(logDestination))
	return kitlog.With(newLogger, "ts", kitlog.DefaultTimestampUTC)
}
