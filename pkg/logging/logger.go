package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides structured logging for pagewalker components.
// All components of one process share a run-specific JSON log file in the
// configured log directory (default ~/.pagewalker/logs/), rotated by lumberjack.
// Console output to stderr is added when Options.Console is set.
type Logger struct {
	sessionID string
	component string
	sugar     *zap.SugaredLogger
	logPath   string
	closeOnce sync.Once
}

// Options configures the package-wide logging backend. Call Configure before
// the first NewLogger; later calls only change the level.
type Options struct {
	Dir     string // empty uses ~/.pagewalker/logs
	Level   string // debug, info, warn, error
	Console bool   // mirror entries to stderr
}

var (
	// Global run ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	optsMu  sync.Mutex
	options Options
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	// sink is shared by every component so they append to one rotated file
	sinkOnce sync.Once
	sink     *lumberjack.Logger
)

// Configure sets the logging backend options.
func Configure(opts Options) {
	optsMu.Lock()
	defer optsMu.Unlock()
	options = opts
	if opts.Dir != "" && logDir == "" {
		logDir = opts.Dir
	}
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// getSessionID returns or creates the run ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".pagewalker", "logs")
		}

		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

func logFilePath() string {
	return filepath.Join(logDir, fmt.Sprintf("%s-pagewalker.log", getSessionID()))
}

func fileSink() *lumberjack.Logger {
	sinkOnce.Do(func() {
		sink = &lumberjack.Logger{
			Filename:   logFilePath(),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		}
	})
	return sink
}

func consoleCore() zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
}

func fileCore() (zapcore.Core, error) {
	f := fileSink()
	// Touch the file so it exists before the first entry.
	if _, err := f.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level), nil
}

// NewLogger creates a new logger for a specific component.
// The logger writes to <log dir>/<run-id>-pagewalker.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode and log warnings.
func NewLogger(component string) (*Logger, error) {
	optsMu.Lock()
	opts := options
	optsMu.Unlock()

	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	fc, err := fileCore()
	if err != nil {
		return newFallbackLogger(component, err), err
	}

	cores := []zapcore.Core{fc}
	if opts.Console {
		cores = append(cores, consoleCore())
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		sugar:     base.Named(component).Sugar(),
		logPath:   logFilePath(),
	}, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	sugar := zap.New(consoleCore()).Named(component).Sugar()
	sugar.Warnf("failed to initialize file logging: %v", err)
	sugar.Warnf("falling back to stderr logging")

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		sugar:     sugar,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{component: "nop", sugar: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		sugar:     l.sugar.With(keysAndValues...),
		logPath:   l.logPath,
	}
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// SessionID returns the current run ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes buffered entries. Safe to call multiple times. The shared
// log file stays open for other components until Shutdown.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		// stderr sync fails on some platforms; nothing useful to report
		_ = l.sugar.Sync()
	})
	return nil
}

// Shutdown closes the shared log file.
func Shutdown() error {
	if sink == nil {
		return nil
	}
	return sink.Close()
}

// GetSessionID returns the current global run ID
func GetSessionID() string {
	return getSessionID()
}
