package sanitize

import (
	"os"
	"path/filepath"

	"chainalyzer/internal/shared/logger"
)

// Sink receives intermediate snapshots from the sanitizer and fetcher for
// post-hoc inspection. Implementations must never fail the caller.
type Sink interface {
	Write(name string, data []byte)
}

// NopSink discards everything. It is the default.
type NopSink struct{}

func (NopSink) Write(string, []byte) {}

// DirSink writes snapshots into a directory, one file per name. Write errors
// are logged and swallowed.
type DirSink struct {
	dir    string
	logger logger.Interface
}

func NewDirSink(dir string, log logger.Interface) *DirSink {
	return &DirSink{dir: dir, logger: log}
}

func (s *DirSink) Write(name string, data []byte) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.warn(name, err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, filepath.Base(name)), data, 0o644); err != nil {
		s.warn(name, err)
	}
}

func (s *DirSink) warn(name string, err error) {
	if s.logger != nil {
		s.logger.Warnw("debug sink write failed", "name", name, "error", err)
	}
}
