// Package logger provides leveled logging in text or JSON lines.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	}
	return "FATAL"
}

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Logger provides leveled logging.
type Logger struct {
	mu     sync.Mutex
	level  Level
	json   bool
	out    io.Writer
	logger *log.Logger
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format
// ("text" or "json").
func Init(level string, format string) {
	initWith(os.Stderr, level, format)
}

// SetOutput redirects the default logger, keeping its level and format.
func SetOutput(w io.Writer) {
	if defaultLogger == nil {
		initWith(w, "info", "text")
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.out = w
	defaultLogger.logger.SetOutput(w)
}

func initWith(w io.Writer, level, format string) {
	flags := log.LstdFlags | log.Lmicroseconds | log.Lshortfile
	defaultLogger = &Logger{
		level:  ParseLevel(level),
		json:   strings.ToLower(format) == "json",
		out:    w,
		logger: log.New(w, "", flags),
	}
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.json {
		line, err := json.Marshal(jsonLine{
			Time:  time.Now().UTC().Format(time.RFC3339Nano),
			Level: strings.ToLower(level.String()),
			Msg:   msg,
		})
		if err != nil {
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		_, _ = l.out.Write(append(line, '\n'))
		return
	}
	// calldepth 3: Output <- write <- Debug/Info/... <- caller
	_ = l.logger.Output(3, "["+level.String()+"] "+msg)
}

func enabled(level Level) bool {
	return defaultLogger != nil && defaultLogger.level <= level
}

func Debug(format string, args ...interface{}) {
	if enabled(DebugLevel) {
		defaultLogger.write(DebugLevel, format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if enabled(InfoLevel) {
		defaultLogger.write(InfoLevel, format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if enabled(WarnLevel) {
		defaultLogger.write(WarnLevel, format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if enabled(ErrorLevel) {
		defaultLogger.write(ErrorLevel, format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.write(ErrorLevel+1, format, args...)
	}
	os.Exit(1)
}
