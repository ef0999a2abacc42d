package splitter

import (
	"io"
	"os"
	"path/filepath"
)

// Sink receives the chunk files of one split.
type Sink interface {
	Create(name string) (io.WriteCloser, error)
	Remove(name string) error
	Path(name string) string
}

// DirSink writes chunks as files inside Dir.
type DirSink struct {
	Dir string
}

func (d DirSink) Create(name string) (io.WriteCloser, error) {
	return os.OpenFile(d.Path(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

func (d DirSink) Remove(name string) error {
	err := os.Remove(d.Path(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d DirSink) Path(name string) string {
	return filepath.Join(d.Dir, name)
}
