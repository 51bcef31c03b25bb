// Package logx provides structured logging with context-aware debug filtering.
//
// Every component of the agent runtime — the Agent container, Modules, the
// Signaler dispatch loop, and the run supervisor — logs through a
// *Logger scoped to the entity's identity (agent name, module type, or
// signal type). Debug logging is globally gated and can be filtered by
// domain so that, e.g., DEBUG_DOMAINS=signal only shows signaler chatter.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, timestamped log lines tagged with an identity.
type Logger struct {
	agentID string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled     bool
	FileLogging bool
	LogDir      string
	Domains     map[string]bool // Which domains to enable debug for (nil = all)
}

//nolint:gochecknoglobals // Intentional global for process-wide debug gating.
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	// logWriter is the destination for all log output. Swappable under
	// logWriterLock so tests can capture output without env-var games.
	logWriter     io.Writer
	logWriterLock sync.RWMutex
)

func init() { //nolint:gochecknoinits // Required for env var initialization.
	initDebugFromEnv()
}

func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugConfig.LogDir == "" {
		debugConfig.LogDir = getDefaultLogDir()
	}

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	if debugFile := os.Getenv("DEBUG_FILE"); debugFile == "1" || strings.EqualFold(debugFile, "true") {
		debugConfig.FileLogging = true
	}

	if debugLogDir := os.Getenv("DEBUG_LOG_DIR"); debugLogDir != "" {
		debugConfig.LogDir = debugLogDir
	} else if debugDir := os.Getenv("DEBUG_DIR"); debugDir != "" {
		debugConfig.LogDir = debugDir
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

func getDefaultLogDir() string {
	if dir, err := os.Getwd(); err == nil {
		return dir + string(os.PathSeparator) + "logs"
	}
	return "logs"
}

func writer() io.Writer {
	logWriterLock.RLock()
	defer logWriterLock.RUnlock()
	if logWriter != nil {
		return logWriter
	}
	return os.Stderr
}

// NewLogger returns a Logger tagged with the given identity (an agent
// name, a module's type name, or a signal type name).
func NewLogger(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

// SetDebugConfig configures global debug logging settings.
func SetDebugConfig(enabled, fileLogging bool, logDir string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	debugConfig.FileLogging = fileLogging

	if logDir == "" {
		debugConfig.LogDir = getDefaultLogDir()
	} else {
		debugConfig.LogDir = logDir
	}

	if fileLogging && debugConfig.LogDir != "" {
		if err := os.MkdirAll(debugConfig.LogDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed to create log directory %s: %v\n", debugConfig.LogDir, err)
		}
	}
}

// SetDebugDomains configures which domains should have debug logging enabled.
// A nil or empty slice enables all domains.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabled returns whether debug logging is enabled globally.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a
// specific domain (e.g. "signal", "supervisor", "registry").
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func (l *Logger) log(level Level, format string, args ...any) {
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", timestamp(), l.agentID, level, fmt.Sprintf(format, args...))
	fmt.Fprint(writer(), line)
}

// Debug logs at debug level if global debug logging is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Debug logs a debug message gated by both the global toggle and a domain
// filter, with the agent identity pulled from ctx (set via WithAgentID;
// "unknown" when absent).
//
// Usage:
//
//	logx.Debug(ctx, "signal", "dispatching %T to %d processors", value, n)
//	logx.Debug(ctx, "supervisor", "restarting module %s after panic", moduleType)
//
// Environment variables:
//
//	DEBUG=1                     enable debug logging for all domains
//	DEBUG_DOMAINS=signal,module enable only the named domains
//	DEBUG_FILE=1                additionally write to DebugToFile targets
//	DEBUG_DIR=/tmp/logs         override the debug log directory
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	agentID := agentIDFromContext(ctx)
	line := fmt.Sprintf("[%s] [%s] %s: [%s] %s\n", timestamp(), agentID, LevelDebug, domain, fmt.Sprintf(format, args...))
	fmt.Fprint(writer(), line)
}

type agentIDContextKey struct{}

// WithAgentID returns a context carrying the given agent identity for use
// by the package-level Debug helpers.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDContextKey{}, agentID)
}

func agentIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if id, ok := ctx.Value(agentIDContextKey{}).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// DebugToFile behaves like Debug but additionally appends the message to
// filename under the configured debug log directory when file logging is
// enabled.
func DebugToFile(ctx context.Context, domain, filename, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	Debug(ctx, domain, format, args...)

	debugMutex.RLock()
	fileLogging := debugConfig.FileLogging
	logDir := debugConfig.LogDir
	debugMutex.RUnlock()

	if !fileLogging || filename == "" {
		return
	}

	agentID := agentIDFromContext(ctx)
	msg := fmt.Sprintf("[%s] [%s] [%s] DEBUG: %s\n", timestamp(), agentID, domain, fmt.Sprintf(format, args...))

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return
	}
	path := logDir + string(os.PathSeparator) + filename
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: failed to open debug log %s: %v\n", path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(msg); err != nil {
		fmt.Fprintf(os.Stderr, "logx: failed to write debug log %s: %v\n", path, err)
	}
}

// DebugToFile writes a debug line for this logger's identity to filename
// under the configured debug log directory, in addition to the normal
// Debug() console line. No-op when debug is disabled; with debug enabled
// but file logging disabled, only the console line is written.
func (l *Logger) DebugToFile(filename, format string, args ...any) {
	debugMutex.RLock()
	enabled := debugConfig.Enabled
	fileLogging := debugConfig.FileLogging
	logDir := debugConfig.LogDir
	debugMutex.RUnlock()

	if !enabled {
		return
	}
	l.Debug(format, args...)

	if !fileLogging {
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return
	}
	msg := fmt.Sprintf("[%s] [%s] DEBUG: %s\n", timestamp(), l.agentID, fmt.Sprintf(format, args...))
	path := logDir + string(os.PathSeparator) + filename
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: failed to open debug log %s: %v\n", path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(msg); err != nil {
		fmt.Fprintf(os.Stderr, "logx: failed to write debug log %s: %v\n", path, err)
	}
}

// DebugState logs a lifecycle/state transition tagged with this logger's
// identity, e.g. logger.DebugState("transition", "Initialized", "inserted by add()").
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = " - " + extra[0]
	}
	l.Debug("state %s: %s%s", action, state, extraInfo)
}

// DebugState logs a lifecycle/state transition in the package-level style.
func DebugState(ctx context.Context, domain, action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = " - " + extra[0]
	}
	Debug(ctx, domain, "state %s: %s%s", action, state, extraInfo)
}

func (l *Logger) GetAgentID() string {
	return l.agentID
}

// WithAgentID returns a copy of the logger tagged with a different identity.
func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

//nolint:gochecknoglobals // Package-level convenience logger, mirrors log.Print* conventions.
var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
