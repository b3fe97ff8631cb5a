// Package eventlog persists raw IPMI discovery and event-dispatch activity
// to per-MC append-only files, rotated and pruned the same way the teacher's
// SOL console logger manages its per-server transcripts — minus the
// ANSI/terminal cleanup that only made sense for an interactive console
// stream.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Writer appends one line per record to a per-key log file (key is usually
// an MC's address string, e.g. "ipmb(ch=0,slave=0x24,lun=0)" or "bmc"),
// continuing the previous file across restarts via a current.log symlink.
type Writer struct {
	basePath      string
	retentionDays int

	mu           sync.Mutex
	files        map[string]*os.File
	lastRotation map[string]time.Time
}

// NewWriter returns a Writer rooted at basePath, pruning files older than
// retentionDays on Cleanup (retentionDays <= 0 disables pruning).
func NewWriter(basePath string, retentionDays int) *Writer {
	return &Writer{
		basePath:      basePath,
		retentionDays: retentionDays,
		files:         make(map[string]*os.File),
		lastRotation:  make(map[string]time.Time),
	}
}

// Write appends one record line (a timestamp prefix plus the caller's
// formatted text) to key's current log file.
func (w *Writer) Write(key, record string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.getOrCreateFile(key)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339Nano), record)
	_, err = f.WriteString(line)
	return err
}

func (w *Writer) getOrCreateFile(key string) (*os.File, error) {
	if f, exists := w.files[key]; exists {
		return f, nil
	}

	dir := filepath.Join(w.basePath, key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	symlinkPath := filepath.Join(dir, "current.log")
	if target, err := os.Readlink(symlinkPath); err == nil {
		existingPath := filepath.Join(dir, target)
		if f, err := os.OpenFile(existingPath, os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			w.files[key] = f
			return f, nil
		}
	}

	filename := time.Now().Format("2006-01-02_15-04-05.000000000") + ".log"
	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	w.files[key] = f
	os.Remove(symlinkPath)
	os.Symlink(filename, symlinkPath)
	log.Debugf("ipmicore: created event log %s", path)
	return f, nil
}

// CanRotate reports whether enough time has passed since key's last
// rotation to allow another one (a two-minute cooldown, matching the
// teacher's console-log rotation rate limit).
func (w *Writer) CanRotate(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastRotation[key]; ok && time.Since(last) < 2*time.Minute {
		return false
	}
	return true
}

// Rotate closes key's current file and drops its current.log link, so the
// next Write for key starts a fresh file.
func (w *Writer) Rotate(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if f, exists := w.files[key]; exists {
		f.Close()
		delete(w.files, key)
	}
	dir := filepath.Join(w.basePath, key)
	os.Remove(filepath.Join(dir, "current.log"))
	w.lastRotation[key] = time.Now()
	return nil
}

// ListLogs returns key's log file names, newest first.
func (w *Writer) ListLogs(key string) ([]string, error) {
	dir := filepath.Join(w.basePath, key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	type logEntry struct {
		name    string
		modTime time.Time
	}
	var logs []logEntry
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".log" && entry.Name() != "current.log" {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			logs = append(logs, logEntry{entry.Name(), info.ModTime()})
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].modTime.After(logs[j].modTime) })

	names := make([]string, len(logs))
	for i, l := range logs {
		names[i] = l.name
	}
	return names, nil
}

// GetLogPath resolves key's named log file to a full path.
func (w *Writer) GetLogPath(key, filename string) string {
	return filepath.Join(w.basePath, key, filename)
}

// GetCurrentLogContent returns key's current log file's full content,
// flushing any buffered writes first.
func (w *Writer) GetCurrentLogContent(key string) ([]byte, error) {
	w.mu.Lock()
	if f, exists := w.files[key]; exists {
		f.Sync()
	}
	w.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(w.basePath, key, "current.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return []byte{}, nil
		}
		return nil, err
	}
	return data, nil
}

// Cleanup removes log files older than the configured retention period.
func (w *Writer) Cleanup() {
	if w.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return
	}
	for _, keyDir := range entries {
		if !keyDir.IsDir() {
			continue
		}
		keyPath := filepath.Join(w.basePath, keyDir.Name())
		logFiles, err := os.ReadDir(keyPath)
		if err != nil {
			continue
		}
		for _, lf := range logFiles {
			if lf.IsDir() || filepath.Ext(lf.Name()) != ".log" {
				continue
			}
			info, err := lf.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(keyPath, lf.Name())
				os.Remove(path)
				log.Debugf("ipmicore: pruned expired event log %s", path)
			}
		}
	}
}

// Close closes every open file handle. The Writer may be reused afterward;
// the next Write reopens (or continues) the appropriate file.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		f.Close()
	}
	w.files = make(map[string]*os.File)
}
