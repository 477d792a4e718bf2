package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLine is one record of a step log.
type LogLine struct {
	Step   string `json:"step"`
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

// StepLog writes the output of every step of one invocation to a JSON-lines
// file. A nil *StepLog discards everything.
type StepLog struct {
	Path string

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// OpenStepLog creates <dir>/<invocation>.log.
func OpenStepLog(dir, invocation string) (*StepLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating step log dir: %w", err)
	}

	path := LogFilePath(dir, invocation)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating step log: %w", err)
	}

	return &StepLog{
		Path:    path,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// LogFilePath returns where the step log of invocation lives.
func LogFilePath(dir, invocation string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.log", invocation))
}

// Writer returns an io.Writer that records each write as a LogLine.
func (l *StepLog) Writer(step, stream string) io.Writer {
	if l == nil {
		return io.Discard
	}
	return &jsonWriter{log: l, step: step, stream: stream}
}

// Close closes the underlying file.
func (l *StepLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

func (l *StepLog) encode(line LogLine) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(line)
}

type jsonWriter struct {
	log    *StepLog
	step   string
	stream string
}

func (w *jsonWriter) Write(p []byte) (int, error) {
	line := LogLine{
		Step:   w.step,
		Stream: w.stream,
		Data:   strings.TrimRight(string(p), "\r\n"),
	}
	if err := w.log.encode(line); err != nil {
		return 0, err
	}
	return len(p), nil
}
