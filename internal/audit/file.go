package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileSink appends events to a JSONL file. The filesystem is injectable so
// tests run against a memory fs.
type FileSink struct {
	fs   afero.Fs
	path string

	mu   sync.Mutex
	file afero.File
}

func NewFileSink(fs afero.Fs, path string) *FileSink {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &FileSink{fs: fs, path: path}
}

func (s *FileSink) Name() string {
	return "file"
}

func (s *FileSink) Write(ctx context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(); err != nil {
		return err
	}

	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("audit: marshal event %s: %w", event.EventID(), err)
		}

		line = append(line, '\n')
		if _, err := s.file.Write(line); err != nil {
			return fmt.Errorf("audit: append to %s: %w", s.path, err)
		}
	}

	return nil
}

func (s *FileSink) open() error {
	if s.file != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("audit: create dir %s: %w", dir, err)
		}
	}

	file, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", s.path, err)
	}

	s.file = file

	return nil
}

func (s *FileSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	return err
}
