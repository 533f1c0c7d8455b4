package treefile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Writer builds a tree file on disk. Pages go to a temporary file that is
// renamed into place by Finish.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	builder *Builder
}

// NewWriter creates a writer for a tree file at path
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(path)))

	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	return &Writer{
		path:    path,
		tmpPath: tmpPath,
		file:    file,
		builder: NewBuilder(file),
	}, nil
}

// Add appends a key/value pair. Keys must be strictly increasing.
func (w *Writer) Add(key, value []byte) error {
	return w.builder.Add(key, value)
}

// Finish writes the internal levels and descriptor, syncs the file and moves
// it to its final path.
func (w *Writer) Finish() (*Descriptor, error) {
	desc, err := w.builder.Finish()
	if err != nil {
		w.Abort()
		return nil, err
	}

	if err := w.file.Sync(); err != nil {
		w.Abort()
		return nil, fmt.Errorf("failed to sync tree file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		w.Abort()
		return nil, fmt.Errorf("failed to close tree file: %w", err)
	}
	w.file = nil

	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return desc, nil
}

// Abort removes the temporary file
func (w *Writer) Abort() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	return os.Remove(w.tmpPath)
}

// WriteFile builds a tree file at path holding pairs, which must be sorted
// by key with no duplicates.
func WriteFile(path string, pairs []Pair) (*Descriptor, error) {
	w, err := NewWriter(path)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		if err := w.Add(p.Key, p.Value); err != nil {
			w.Abort()
			return nil, err
		}
	}

	return w.Finish()
}
