// Package chunk implements the background writers that persist waterfall
// row batches and raw IQ buffers as sequentially numbered chunk files.
package chunk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// File extensions for the two chunk kinds
const (
	ImageExt = ".jpg"
	IQExt    = ".iq"
)

// DefaultIdleTimeout is how long a writer waits for a payload before it
// reports the producer as quiet.
const DefaultIdleTimeout = 10 * time.Second

// Name returns the file name of chunk index for base, e.g. "rec-00003.jpg"
func Name(base string, index int, ext string) string {
	return fmt.Sprintf("%s-%05d%s", base, index, ext)
}

// Discover returns one past the highest chunk index present for base, or 0
// when there are none.
func Discover(base, ext string) int {
	matches, err := filepath.Glob(base + "-[0-9][0-9][0-9][0-9][0-9]" + ext)
	if err != nil {
		return 0
	}
	count := 0
	prefix := base + "-"
	for _, m := range matches {
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(m, prefix), ext))
		if err != nil {
			continue
		}
		if idx+1 > count {
			count = idx + 1
		}
	}
	return count
}

// SplitName strips the "-NNNNN.ext" suffix from a chunk file name, returning
// the base name and extension. ok is false when name is not a chunk file.
func SplitName(name string) (base, ext string, ok bool) {
	ext = filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	i := strings.LastIndexByte(stem, '-')
	if i < 0 || len(stem)-i-1 != 5 {
		return "", "", false
	}
	if _, err := strconv.Atoi(stem[i+1:]); err != nil {
		return "", "", false
	}
	return stem[:i], ext, true
}

// IOError reports a failure to read, write or remove one chunk file
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("chunk %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Remove deletes a chunk file; a file that is already gone is not an error
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// consume receives payloads until a zero-length sentinel arrives, the
// channel is closed or ctx is cancelled. Each payload is handed to write;
// failures are logged and the payload is dropped. It returns the number of
// payloads written successfully.
func consume[T any](ctx context.Context, in <-chan T, size func(T) int, write func(T) error, idle time.Duration, log *zap.Logger) int {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()

	saved := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("writer cancelled", zap.Int("saved", saved))
			return saved
		case <-timer.C:
			log.Debug("no payload received", zap.Duration("idle", idle), zap.Int("saved", saved))
			timer.Reset(idle)
		case p, ok := <-in:
			if !ok || size(p) == 0 {
				return saved
			}
			if err := write(p); err != nil {
				log.Warn("chunk skipped", zap.Error(err))
			} else {
				saved++
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		}
	}
}
