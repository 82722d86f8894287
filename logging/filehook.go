package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var allLevels = []logrus.Level{
	logrus.PanicLevel,
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
}

// FileHook appends every log entry as one JSON line to a file
type FileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter *logrus.JSONFormatter
	levels    []logrus.Level
}

// NewFileHook opens $path for appending and logs everything at $minLevel or more severe
func NewFileHook(path string, minLevel logrus.Level) (*FileHook, error) {
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to open log file %s: %v\n", path, err)
		return nil, err
	}

	levels := make([]logrus.Level, 0, len(allLevels))
	for _, level := range allLevels {
		if level <= minLevel {
			levels = append(levels, level)
		}
	}

	return &FileHook{
		file:      logFile,
		formatter: &logrus.JSONFormatter{},
		levels:    levels,
	}, nil
}

// Fire writes the entry
func (hook *FileHook) Fire(entry *logrus.Entry) error {
	line, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()

	_, err = hook.file.Write(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to write to log file: %v\n", err)
	}
	return err
}

func (hook *FileHook) Levels() []logrus.Level {
	return hook.levels
}

// Close closes the underlying file
func (hook *FileHook) Close() error {
	hook.mu.Lock()
	defer hook.mu.Unlock()

	return hook.file.Close()
}
