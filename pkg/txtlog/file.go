package txtlog

import (
	"fmt"
	"os"
	"sync"
)

// logFile is the shared append-only file handle. Writes and reopen/close
// are serialized on mu.
type logFile struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func (lf *logFile) open(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f != nil {
		lf.f.Close()
	}
	lf.f = f
	lf.path = path
	return nil
}

// Write appends p with a single write call.
func (lf *logFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return 0, ErrNotReady
	}
	return lf.f.Write(p)
}

func (lf *logFile) close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", lf.path, err)
	}
	return nil
}

func (lf *logFile) state() (open bool, path string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.f != nil, lf.path
}
