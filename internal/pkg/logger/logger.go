/*******************************************************************************
 * Copyright 2019 Dell Inc.
 * Copyright (C) 2025 IOTech Ltd
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License. You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software distributed under the License
 * is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
 * or implied. See the License for the specific language governing permissions and limitations under
 * the License.
 *******************************************************************************/

/*
Package logger provides the gateway logging client. Records are written through zerolog to the
console, to a local file, or both.
*/
package logger

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// 本地日志级别常量
const (
	TraceLog = "TRACE"
	DebugLog = "DEBUG"
	InfoLog  = "INFO"
	WarnLog  = "WARN"
	ErrorLog = "ERROR"
)

type zeroLogger struct {
	logLevel   string
	zl         zerolog.Logger
	mu         sync.RWMutex // 保护 logLevel
	fileHandle *os.File
	filePath   string
}

// LoggerConfig holds configuration for logger creation
type LoggerConfig struct {
	LogLevel      string // Log level (TRACE, DEBUG, INFO, WARN, ERROR)
	FilePath      string // Path to log file (empty for console only)
	EnableConsole bool   // Whether to also output to console
	JSON          bool   // Raw JSON on the console instead of the human readable writer
	Writer        io.Writer
}

// NewClient creates an instance of LoggingClient with default settings (stdout only)
func NewClient(logLevel string) LoggingClient {
	return NewClientWithConfig(LoggerConfig{
		LogLevel:      logLevel,
		EnableConsole: true,
	})
}

// NewClientWithFile creates an instance of LoggingClient that writes to both console and file
func NewClientWithFile(logLevel string, filePath string) (LoggingClient, error) {
	lc := NewClientWithConfig(LoggerConfig{
		LogLevel:      logLevel,
		FilePath:      filePath,
		EnableConsole: true,
	})
	if lc.(*zeroLogger).fileHandle == nil {
		return lc, fmt.Errorf("failed to open log file %s", filePath)
	}
	return lc, nil
}

// NewClientWithConfig creates an instance of LoggingClient with custom configuration.
// Writer, when set, replaces the console as the primary sink.
func NewClientWithConfig(config LoggerConfig) LoggingClient {
	upper := strings.ToUpper(config.LogLevel)
	if !isValidLogLevel(upper) {
		upper = InfoLog
	}

	l := &zeroLogger{
		logLevel: upper,
		filePath: config.FilePath,
	}

	var writers []io.Writer
	switch {
	case config.Writer != nil:
		writers = append(writers, config.Writer)
	case config.EnableConsole && config.JSON:
		writers = append(writers, os.Stdout)
	case config.EnableConsole:
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"})
	}

	if config.FilePath != "" {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			stdLog.Printf("Failed to create log directory %s: %v", dir, err)
		} else {
			file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				stdLog.Printf("Failed to open log file %s: %v", config.FilePath, err)
			} else {
				l.fileHandle = file
				writers = append(writers, file)
			}
		}
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"}
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	// filtering happens in output(); zerolog itself passes everything through
	l.zl = zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return l
}

// Close closes the log file if one is open
func (l *zeroLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileHandle != nil {
		err := l.fileHandle.Close()
		l.fileHandle = nil
		return err
	}
	return nil
}

// logLevels returns the possible log levels in order from most to least verbose.
func logLevels() []string {
	return []string{TraceLog, DebugLog, InfoLog, WarnLog, ErrorLog}
}

func isValidLogLevel(l string) bool {
	l = strings.ToUpper(l)
	for _, name := range logLevels() {
		if name == l {
			return true
		}
	}
	return false
}

var levelOrder = map[string]int{
	TraceLog: 0,
	DebugLog: 1,
	InfoLog:  2,
	WarnLog:  3,
	ErrorLog: 4,
}

var zerologLevels = map[string]zerolog.Level{
	TraceLog: zerolog.TraceLevel,
	DebugLog: zerolog.DebugLevel,
	InfoLog:  zerolog.InfoLevel,
	WarnLog:  zerolog.WarnLevel,
	ErrorLog: zerolog.ErrorLevel,
}

func (l *zeroLogger) currentLevel() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logLevel
}

func (l *zeroLogger) enabled(target string) bool {
	return levelOrder[target] >= levelOrder[l.currentLevel()]
}

func caller(skip int) string {
	if _, file, line, ok := runtime.Caller(skip); ok {
		// 截断文件路径到最后两级
		parts := strings.Split(file, "/")
		if len(parts) > 2 {
			file = strings.Join(parts[len(parts)-2:], "/")
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
	return "???"
}

func (l *zeroLogger) output(level string, formatted bool, msg string, args ...interface{}) {
	if !isValidLogLevel(level) || !l.enabled(level) {
		return
	}

	ev := l.zl.WithLevel(zerologLevels[level]).Str("source", caller(4))
	if formatted {
		ev.Msg(fmt.Sprintf(msg, args...))
		return
	}

	if len(args)%2 == 1 {
		args = append(args, "")
	}
	for i := 0; i < len(args); i += 2 {
		k := fmt.Sprintf("%v", args[i])
		switch k {
		case zerolog.LevelFieldName, zerolog.TimestampFieldName, zerolog.MessageFieldName, "source":
			k = "extra_" + k
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(k, v)
		case time.Duration:
			ev = ev.Dur(k, v)
		case fmt.Stringer:
			ev = ev.Str(k, v.String())
		default:
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(msg)
}

func (lc *zeroLogger) log(level string, formatted bool, msg string, args ...interface{}) {
	lc.output(level, formatted, msg, args...)
}

func (lc *zeroLogger) SetLogLevel(logLevel string) error {
	upper := strings.ToUpper(logLevel)
	if !isValidLogLevel(upper) {
		return fmt.Errorf("invalid log level `%s`", logLevel)
	}
	lc.mu.Lock()
	lc.logLevel = upper
	lc.mu.Unlock()
	return nil
}

func (lc *zeroLogger) LogLevel() string { return lc.currentLevel() }

func (lc *zeroLogger) Info(msg string, args ...interface{})  { lc.log(InfoLog, false, msg, args...) }
func (lc *zeroLogger) Trace(msg string, args ...interface{}) { lc.log(TraceLog, false, msg, args...) }
func (lc *zeroLogger) Debug(msg string, args ...interface{}) { lc.log(DebugLog, false, msg, args...) }
func (lc *zeroLogger) Warn(msg string, args ...interface{})  { lc.log(WarnLog, false, msg, args...) }
func (lc *zeroLogger) Error(msg string, args ...interface{}) { lc.log(ErrorLog, false, msg, args...) }

func (lc *zeroLogger) Infof(msg string, args ...interface{})  { lc.log(InfoLog, true, msg, args...) }
func (lc *zeroLogger) Tracef(msg string, args ...interface{}) { lc.log(TraceLog, true, msg, args...) }
func (lc *zeroLogger) Debugf(msg string, args ...interface{}) { lc.log(DebugLog, true, msg, args...) }
func (lc *zeroLogger) Warnf(msg string, args ...interface{})  { lc.log(WarnLog, true, msg, args...) }
func (lc *zeroLogger) Errorf(msg string, args ...interface{}) { lc.log(ErrorLog, true, msg, args...) }
