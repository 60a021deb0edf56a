package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelRank = map[string]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

var (
	mu        sync.RWMutex
	appLogger = log.New(os.Stderr, "APP: ", log.Ldate|log.Ltime|log.Lshortfile)
	errLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	logLevel  = LevelInfo
	logFile   *os.File
)

// Init sets the level and, when path is non-empty, mirrors output into path.
// Calling Init again closes a previously opened file.
func Init(level, path string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	lvl := strings.ToUpper(strings.TrimSpace(level))
	if _, ok := levelRank[lvl]; !ok {
		lvl = LevelInfo
	}
	logLevel = lvl

	var out io.Writer = os.Stderr
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}
	appLogger = log.New(out, "APP: ", log.Ldate|log.Ltime|log.Lshortfile)
	errLogger = log.New(out, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	return nil
}

// SetOutput redirects every logger to w. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	appLogger.SetOutput(w)
	errLogger.SetOutput(w)
}

// Level returns the active level name.
func Level() string {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

func enabled(level string) bool {
	return levelRank[level] >= levelRank[logLevel]
}

// output resolves the logger under mu so a concurrent Init cannot swap it
// out mid-call.
func output(toErr bool, level, format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled(level) {
		return
	}
	l := appLogger
	if toErr {
		l = errLogger
	}
	_ = l.Output(3, fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) { output(false, LevelDebug, format, v...) }

func Info(format string, v ...interface{}) { output(false, LevelInfo, format, v...) }

func Warn(format string, v ...interface{}) { output(false, LevelWarn, "WARN: "+format, v...) }

func Error(format string, v ...interface{}) { output(true, LevelError, format, v...) }

func Fatal(format string, v ...interface{}) {
	mu.RLock()
	l := errLogger
	mu.RUnlock()
	_ = l.Output(2, fmt.Sprintf(format, v...))
	Close()
	os.Exit(1)
}

// Close flushes and closes the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
