package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type downloadConfig struct {
	targetDir   string
	tempPattern string
}

type DownloadConfigOption func(*downloadConfig)

func WithTargetDir(dir string) DownloadConfigOption {
	return func(c *downloadConfig) {
		c.targetDir = dir
	}
}

func WithTempPattern(pattern string) DownloadConfigOption {
	return func(c *downloadConfig) {
		c.tempPattern = pattern
	}
}

// DownloadState tracks the temporary files of one download. Temporary files live in the target directory so that
// committing one is an atomic rename; anything not committed is removed when the state closes, which means a failed
// or cancelled download never leaves a partial file in place of an existing one.
type DownloadState struct {
	config downloadConfig
	temps  map[string]struct{}
}

func newDownloadState(config downloadConfig) (*DownloadState, error) {
	if err := os.MkdirAll(config.targetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target dir: %w", err)
	}
	return &DownloadState{
		config: config,
		temps:  make(map[string]struct{}),
	}, nil
}

func (s *DownloadState) close() {
	for path := range s.temps {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			zap.S().Named("download").Warnf("failed to clean up %s: %v", path, err)
		}
	}
	s.temps = nil
}

// TargetPath is where a file called filename ends up once committed.
func (s *DownloadState) TargetPath(filename string) string {
	return filepath.Join(s.config.targetDir, filename)
}

// Exists reports whether filename is already present in the target directory.
func (s *DownloadState) Exists(filename string) bool {
	_, err := os.Stat(s.TargetPath(filename))
	return err == nil
}

func (s *DownloadState) CreateTemp() (*os.File, error) {
	f, err := os.CreateTemp(s.config.targetDir, s.config.tempPattern)
	if err != nil {
		return nil, err
	}
	s.temps[f.Name()] = struct{}{}
	return f, nil
}

// Commit closes f (a file from CreateTemp) and moves it to filename, replacing any existing file.
func (s *DownloadState) Commit(f *os.File, filename string) (string, error) {
	if _, ok := s.temps[f.Name()]; !ok {
		return "", fmt.Errorf("not a temporary file of this download: %s", f.Name())
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", f.Name(), err)
	}
	target := s.TargetPath(filename)
	if err := os.Rename(f.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	delete(s.temps, f.Name())
	return target, nil
}

// WithDownloadState runs f with a fresh DownloadState, cleaning up uncommitted temporary files afterwards.
func WithDownloadState(f func(state *DownloadState) error, opts ...DownloadConfigOption) error {
	config := downloadConfig{
		targetDir:   ".",
		tempPattern: ".video-fetcher-*.part",
	}
	for _, opt := range opts {
		opt(&config)
	}
	if state, err := newDownloadState(config); err != nil {
		return err
	} else {
		defer state.close()
		return f(state)
	}
}
