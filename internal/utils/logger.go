package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	debug       bool
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	fatalLogger *log.Logger
}

const logFlags = log.Ldate | log.Ltime | log.Lshortfile

// NewLogger builds the application logger. Output goes to stdout/stderr and,
// when extra is non-nil, also to extra.
func NewLogger(debug bool, extra io.Writer) *Logger {
	var out, errOut io.Writer = os.Stdout, os.Stderr
	if extra != nil {
		out = io.MultiWriter(os.Stdout, extra)
		errOut = io.MultiWriter(os.Stderr, extra)
	}
	return newLogger(debug, out, errOut, logFlags)
}

// NewWriterLogger logs every level to w only.
func NewWriterLogger(debug bool, w io.Writer) *Logger {
	return newLogger(debug, w, w, logFlags)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return newLogger(false, io.Discard, io.Discard, 0)
}

func newLogger(debug bool, out, errOut io.Writer, flags int) *Logger {
	return &Logger{
		debug:       debug,
		debugLogger: log.New(out, "DEBUG: ", flags),
		infoLogger:  log.New(out, "INFO: ", flags),
		warnLogger:  log.New(out, "WARN: ", flags),
		errorLogger: log.New(errOut, "ERROR: ", flags),
		fatalLogger: log.New(errOut, "FATAL: ", flags),
	}
}

func (l *Logger) Debug(v ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Info(v ...interface{}) {
	l.infoLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Warn(v ...interface{}) {
	l.warnLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Error(v ...interface{}) {
	l.errorLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Fatal(v ...interface{}) {
	l.fatalLogger.Output(2, fmt.Sprintln(v...))
	os.Exit(1)
}

// ErrorLog is the persistent, append-only record of per-series failures.
// Each Record call writes exactly one line.
type ErrorLog struct {
	logger *log.Logger
	closer io.Closer
}

// NewErrorLog opens a rotating error log at path, creating parent directories.
func NewErrorLog(path string, maxSizeMB, maxBackups, maxAgeDays int) (*ErrorLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &ErrorLog{
		logger: log.New(rotator, "", log.Ldate|log.Ltime),
		closer: rotator,
	}, nil
}

// NewErrorLogWriter wraps an arbitrary writer, mostly for tests.
func NewErrorLogWriter(w io.Writer) *ErrorLog {
	return &ErrorLog{logger: log.New(w, "", log.Ldate|log.Ltime)}
}

var lineBreaks = strings.NewReplacer("\r\n", " | ", "\n", " | ", "\r", " | ")

// Record appends "ERROR: <series>: <message>". Line breaks in either field
// are flattened so every record stays on one line. log.Logger serializes
// writes.
func (e *ErrorLog) Record(series, message string) {
	if e == nil {
		return
	}
	e.logger.Printf("ERROR: %s: %s", lineBreaks.Replace(series), lineBreaks.Replace(strings.TrimSpace(message)))
}

func (e *ErrorLog) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer.Close()
}
