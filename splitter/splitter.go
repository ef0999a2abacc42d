// Package splitter streams a source into size-bounded chunk files.
package splitter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	DefaultMaxChunkSize = 50 * types.MiB
	DefaultBufferSize   = 8 * types.MiB
)

// ProgressFunc receives the bytes consumed so far out of total.
type ProgressFunc func(done, total int64)

type Splitter struct {
	MaxChunkSize int64
	BufferSize   int
	OnProgress   ProgressFunc
}

func New(maxChunkSize int64, bufferSize int) *Splitter {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Splitter{
		MaxChunkSize: maxChunkSize,
		BufferSize:   bufferSize,
	}
}

// SplitFile splits the file at path into chunks next to it. A file that
// already fits is returned as the only chunk, untouched.
func (s *Splitter) SplitFile(ctx context.Context, path string) ([]types.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSplitIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", types.ErrSplitIO, path)
	}
	if info.Size() <= s.MaxChunkSize {
		return []types.Chunk{{
			Index: 0,
			Name:  filepath.Base(path),
			Path:  path,
			Size:  info.Size(),
		}}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSplitIO, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close %s: %v", path, err)
		}
	}()

	return s.SplitStream(ctx, f, info.Size(), filepath.Base(path), DirSink{Dir: filepath.Dir(path)})
}

// SplitStream copies size bytes from r into chunks named after name. Every
// chunk but the last holds exactly MaxChunkSize bytes. On failure every chunk
// created by this call is removed before the error is returned.
func (s *Splitter) SplitStream(ctx context.Context, r io.Reader, size int64, name string, sink Sink) (chunks []types.Chunk, err error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	var (
		current io.WriteCloser
		inChunk int64
		total   int64
	)
	defer func() {
		if err == nil {
			return
		}
		if current != nil {
			_ = current.Close()
		}
		for _, c := range chunks {
			if rmErr := sink.Remove(c.Name); rmErr != nil {
				tool.DefaultLogger.Errorf("Failed to remove partial chunk %s: %v", c.Name, rmErr)
			}
		}
		chunks = nil
		err = fmt.Errorf("%w: %s: %w", types.ErrSplitIO, name, err)
	}()

	if s.MaxChunkSize <= 0 || s.BufferSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d or buffer size %d", s.MaxChunkSize, s.BufferSize)
	}
	buf := make([]byte, s.BufferSize)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return chunks, ctxErr
		}

		n, readErr := r.Read(buf)
		for cursor := 0; cursor < n; {
			if current == nil {
				index := len(chunks)
				chunkName := ChunkName(base, ext, index)
				w, createErr := sink.Create(chunkName)
				if createErr != nil {
					return chunks, fmt.Errorf("create %s: %w", chunkName, createErr)
				}
				current = w
				chunks = append(chunks, types.Chunk{
					Index: index,
					Label: Label(index),
					Name:  chunkName,
					Path:  sink.Path(chunkName),
				})
			}

			room := s.MaxChunkSize - inChunk
			k := min(int64(n-cursor), room)
			written, writeErr := current.Write(buf[cursor : cursor+int(k)])
			if writeErr == nil && int64(written) != k {
				writeErr = io.ErrShortWrite
			}
			if writeErr != nil {
				return chunks, fmt.Errorf("write %s: %w", chunks[len(chunks)-1].Name, writeErr)
			}

			inChunk += k
			total += k
			cursor += int(k)
			chunks[len(chunks)-1].Size = inChunk

			if inChunk == s.MaxChunkSize {
				closeErr := current.Close()
				current = nil
				inChunk = 0
				if closeErr != nil {
					return chunks, fmt.Errorf("close %s: %w", chunks[len(chunks)-1].Name, closeErr)
				}
			}
		}
		if n > 0 && s.OnProgress != nil {
			s.OnProgress(total, size)
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return chunks, fmt.Errorf("read: %w", readErr)
		}
	}

	if current != nil {
		closeErr := current.Close()
		current = nil
		if closeErr != nil {
			return chunks, fmt.Errorf("close %s: %w", chunks[len(chunks)-1].Name, closeErr)
		}
	}
	if size >= 0 && total != size {
		return chunks, fmt.Errorf("source yielded %d of %d bytes", total, size)
	}
	return chunks, nil
}
