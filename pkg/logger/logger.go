package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

var base *slog.Logger

func init() {
	Init(os.Getenv("ENVIRONMENT"))
}

// Init rebuilds the package logger. Development gets human-readable text with
// debug records; every other environment gets JSON at info level.
func Init(environment string) {
	var handler slog.Handler
	if environment == "development" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	base = slog.New(handler)
}

// Logger exposes the underlying structured logger for components that take one.
func Logger() *slog.Logger {
	return base
}

func Info(format string, v ...interface{}) {
	logf(slog.LevelInfo, format, v...)
}

func Error(format string, v ...interface{}) {
	logf(slog.LevelError, format, v...)
}

func Debug(format string, v ...interface{}) {
	logf(slog.LevelDebug, format, v...)
}

func Warn(format string, v ...interface{}) {
	logf(slog.LevelWarn, format, v...)
}

// With returns a logger carrying the given attributes, e.g. logger.With("listing_id", id).
func With(args ...any) *slog.Logger {
	return base.With(args...)
}

func logf(level slog.Level, format string, v ...interface{}) {
	ctx := context.Background()
	if !base.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, v...), pcs[0])
	_ = base.Handler().Handle(ctx, r)
}

// LogListingError records a failed lifecycle transition without failing the caller.
func LogListingError(listingID, action string, err error) {
	Warn("Listing %s failed: listingID=%s, error=%v", action, listingID, err)
}
