// Package logger provides structured logging for the runtime, wrapping
// Go's standard log/slog with level control via the LOG_LEVEL environment
// variable and a small set of domain-specific helpers for node and session
// lifecycle events.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance.
// It is safe for concurrent use and initialized with slog.LevelInfo by default.
var DefaultLogger *slog.Logger

// logOutput is the destination for the default text/JSON handlers.
// Tests may redirect it before calling Configure.
var logOutput io.Writer = os.Stderr

// customHandler, when set via SetLogger, is preserved across Configure calls.
var customHandler slog.Handler

func init() {
	level := envLevel()
	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

func envLevel() slog.Level {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = ParseLevel(v)
	}
	return level
}

// ParseLevel maps a case-insensitive level name to a slog.Level, defaulting
// to LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// SetLogger installs a caller-provided handler, bypassing Configure until reset to nil.
func SetLogger(handler slog.Handler) {
	customHandler = handler
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

func Info(msg string, args ...any)  { DefaultLogger.Info(msg, args...) }
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }
func Warn(msg string, args ...any)  { DefaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// NodeEvent logs a node lifecycle transition (initialize, process, cleanup)
// with the session and node identifiers attached for correlation.
func NodeEvent(ctx context.Context, sessionID, nodeID, event string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs, "session_id", sessionID, "node_id", nodeID, "event", event)
	allAttrs = append(allAttrs, attrs...)
	DefaultLogger.InfoContext(ctx, "node event", allAttrs...)
}

// SessionEvent logs a session state machine transition.
func SessionEvent(ctx context.Context, sessionID, from, to string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs, "session_id", sessionID, "from", from, "to", to)
	allAttrs = append(allAttrs, attrs...)
	DefaultLogger.InfoContext(ctx, "session transition", allAttrs...)
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`),
}

// RedactSensitiveData removes API keys and bearer tokens from strings headed
// to a log sink, preserving enough of the prefix for debugging.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
