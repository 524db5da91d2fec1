package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// RotatingFile implements io.WriteCloser with size-based rotation.
// When a write would push the file past maxSize, the file is shifted to
// path.1 (path.1.gz when compressing) and older backups move up by one,
// keeping at most maxBackups.
type RotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int
	compress   bool
	file       *os.File
	size       int64
	mu         sync.Mutex
}

// RotationOptions configures a RotatingFile.
type RotationOptions struct {
	MaxSize    int64
	MaxBackups int
	Compress   bool
}

// OpenRotatingFile opens path with rotation support.
// A zero MaxSize disables rotation; zero MaxBackups discards the old file on rotation.
func OpenRotatingFile(path string, opts RotationOptions) (*RotatingFile, error) {
	rf := &RotatingFile{
		path:       path,
		maxSize:    opts.MaxSize,
		maxBackups: opts.MaxBackups,
		compress:   opts.Compress,
	}
	if err := rf.openFile(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *RotatingFile) openFile() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}

	r.file = f
	r.size = info.Size()
	return nil
}

// Write implements io.Writer. It rotates the file if needed before writing.
func (r *RotatingFile) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		// A failed rotation still writes to whatever file is open.
		_ = r.rotate()
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// rotate shifts log -> log.1 -> log.2 ... and reopens an empty log.
func (r *RotatingFile) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return err
		}
	}

	if r.maxBackups > 0 {
		// A backup left uncompressed by a failed gzip is shifted and pruned
		// alongside the .gz ones. Each index holds at most one of the two.
		names := []func(int) string{r.backupPath}
		if r.compress {
			names = append(names, r.plainBackupPath)
		}
		for _, name := range names {
			_ = os.Remove(name(r.maxBackups))
			for i := r.maxBackups - 1; i >= 1; i-- {
				if _, err := os.Stat(name(i)); err == nil {
					_ = os.Rename(name(i), name(i+1))
				}
			}
		}

		if r.compress {
			if err := compressFile(r.path, r.backupPath(1)); err == nil {
				_ = os.Remove(r.path)
			} else {
				_ = os.Remove(r.backupPath(1))
				_ = os.Rename(r.path, r.plainBackupPath(1))
			}
		} else {
			_ = os.Rename(r.path, r.backupPath(1))
		}
	} else {
		_ = os.Remove(r.path)
	}

	r.size = 0
	return r.openFile()
}

func (r *RotatingFile) backupPath(n int) string {
	p := r.plainBackupPath(n)
	if r.compress {
		p += ".gz"
	}
	return p
}

func (r *RotatingFile) plainBackupPath(n int) string {
	return fmt.Sprintf("%s.%d", r.path, n)
}

// compressFile is swapped out in tests to simulate a failed gzip.
var compressFile = gzipFile

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(B|KB|MB|GB)?$`)

// ParseSize parses a size string like "10MB", "1GB", "500KB" into bytes.
// Returns 0 for empty or invalid strings.
func ParseSize(s string) int64 {
	matches := sizePattern.FindStringSubmatch(strings.TrimSpace(strings.ToUpper(s)))
	if matches == nil {
		return 0
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0
	}

	multiplier := map[string]float64{
		"":   1,
		"B":  1,
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
	}[matches[2]]

	return int64(value * multiplier)
}

// NewFileLoggerWithRotation creates a logger on a RotatingFile.
// An empty or invalid maxSize falls back to a plain append-only file.
func NewFileLoggerWithRotation(path string, level slog.Level, maxSize string, maxBackups int, compress bool) (*slog.Logger, io.Closer, error) {
	size := ParseSize(maxSize)
	if size <= 0 {
		return NewFileLogger(path, level)
	}

	rf, err := OpenRotatingFile(path, RotationOptions{MaxSize: size, MaxBackups: maxBackups, Compress: compress})
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(rf, level), rf, nil
}
