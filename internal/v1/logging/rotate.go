package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// hourlyWriter appends to a file named <prefix>.<YYYY-MM-DD-HH> under
// dir, opening a fresh file whenever the hour rolls over. It implements
// zapcore.WriteSyncer.
type hourlyWriter struct {
	mu     sync.Mutex
	dir    string
	prefix string
	hour   time.Time
	file   *os.File
	now    func() time.Time
}

func newHourlyWriter(dir, prefix string) (*hourlyWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	w := &hourlyWriter{dir: dir, prefix: prefix, now: time.Now}
	if err := w.rotate(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *hourlyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if !now.Truncate(time.Hour).Equal(w.hour) {
		if err := w.rotate(now); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *hourlyWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

func (w *hourlyWriter) rotate(now time.Time) error {
	hour := now.Truncate(time.Hour)
	name := filepath.Join(w.dir, fmt.Sprintf("%s.%s", w.prefix, hour.Format("2006-01-02-15")))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = file
	w.hour = hour
	return nil
}
