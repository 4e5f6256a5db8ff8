// Package audit records one JSON line per fishook hook invocation.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/logger"
)

// Version is the audit entry format version.
const Version = 1

// TimestampFormat is the format used for audit log timestamps.
const TimestampFormat = "2006-01-02T15:04:05.0Z07:00"

// RotatedSuffix is appended to the log path for the compressed previous log.
const RotatedSuffix = ".1.gz"

// Entry represents a single audit log entry (v1 format).
type Entry struct {
	Version    int            `json:"version"`
	Timestamp  string         `json:"timestamp"`
	DurationMs float64        `json:"duration_ms"`
	Hook       string         `json:"hook"`
	Args       []string       `json:"args,omitempty"`
	RepoRoot   string         `json:"repo_root"`
	DryRun     bool           `json:"dry_run,omitempty"`
	Configs    []string       `json:"configs"`
	Events     map[string]int `json:"events,omitempty"`
	Commands   int            `json:"commands"`
	Executed   int            `json:"executed"`
	ExitCode   int            `json:"exit_code"`
	Error      string         `json:"error,omitempty"`
	Failure    *Failure       `json:"failure,omitempty"`
}

// Failure identifies the command that stopped an invocation.
type Failure struct {
	Config  string `json:"config"`
	Block   int    `json:"block"`
	Handler string `json:"handler"`
	Command string `json:"command"`
}

var (
	auditFile *os.File
	mu        sync.Mutex
	enabled   bool
)

// DefaultLogPath returns the audit log path inside a repository's state dir.
func DefaultLogPath(stateDir string) string {
	return filepath.Join(stateDir, constants.AuditFileName)
}

// Init opens the audit log at path for appending, rotating it first when it
// has grown past constants.AuditRotateBytes. disable turns logging off.
func Init(path string, disable bool) error {
	mu.Lock()
	defer mu.Unlock()

	if disable {
		enabled = false
		return nil
	}
	if path == "" {
		return fmt.Errorf("audit log path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirMode); err != nil {
		logger.Debug("failed to create audit log directory", "error", err)
		return err
	}

	if err := rotate(path, constants.AuditRotateBytes); err != nil {
		logger.Warn("failed to rotate audit log", "path", path, "error", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FileMode)
	if err != nil {
		logger.Debug("failed to open audit log file", "error", err)
		return err
	}

	auditFile = f
	enabled = true
	logger.Debug("audit logging initialized", "path", path)
	return nil
}

// rotate compresses path into path+RotatedSuffix and truncates it once it
// exceeds limit bytes. The previous rotated file is replaced.
func rotate(path string, limit int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() <= limit {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := path + RotatedSuffix + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, constants.FileMode)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	zw.ModTime = info.ModTime()
	if _, err := io.Copy(zw, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path+RotatedSuffix); err != nil {
		return err
	}

	logger.Debug("audit log rotated", "path", path, "size", info.Size())
	return os.Truncate(path, 0)
}

// ReadRotated returns the decompressed content of the rotated log.
func ReadRotated(path string) ([]byte, error) {
	f, err := os.Open(path + RotatedSuffix)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Close closes the audit log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if auditFile != nil {
		err := auditFile.Close()
		auditFile = nil
		enabled = false
		return err
	}
	return nil
}

// Log writes an entry to the audit log.
// If audit logging is not initialized or disabled, this is a no-op.
func Log(entry Entry) error {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || auditFile == nil {
		return nil
	}

	entry.Version = Version
	entry.Timestamp = time.Now().UTC().Format(TimestampFormat)

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Debug("failed to marshal audit entry", "error", err)
		return err
	}

	if _, err := auditFile.Write(append(data, '\n')); err != nil {
		logger.Debug("failed to write audit entry", "error", err)
		return err
	}

	return nil
}

// IsEnabled returns whether audit logging is enabled.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Reset resets the audit state. Used for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if auditFile != nil {
		auditFile.Close()
	}
	auditFile = nil
	enabled = false
}
