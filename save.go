package serial

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// TextSaver writes received text to files. The zero value is not usable;
// use NewTextSaver.
type TextSaver struct {
	fs afero.Fs
}

// NewTextSaver returns a saver backed by fs, or by the OS filesystem when fs is nil.
func NewTextSaver(fs afero.Fs) *TextSaver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &TextSaver{fs: fs}
}

// Save replaces the file at path with content, creating parent directories.
func (s *TextSaver) Save(path, content string) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Append adds content to the end of the file at path, creating it if needed.
func (s *TextSaver) Append(path, content string) (int, error) {
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	n, err := f.WriteString(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("append %s: %w", path, err)
	}
	return n, nil
}
