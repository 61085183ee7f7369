package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// Logger routes asynq's internal logging into slog.
type Logger struct {
	logger *slog.Logger
}

var _ asynq.Logger = (*Logger)(nil)

// NewLogger wraps logger for asynq.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger.With("component", "asynq")}
}

func (l *Logger) log(level slog.Level, args []any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprint(args...))
}

func (l *Logger) Debug(args ...any) { l.log(slog.LevelDebug, args) }
func (l *Logger) Info(args ...any)  { l.log(slog.LevelInfo, args) }
func (l *Logger) Warn(args ...any)  { l.log(slog.LevelWarn, args) }
func (l *Logger) Error(args ...any) { l.log(slog.LevelError, args) }

// Fatal logs at error level and exits, as asynq expects.
func (l *Logger) Fatal(args ...any) {
	l.log(slog.LevelError, args)
	os.Exit(1)
}
