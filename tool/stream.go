package tool

import (
	"context"
	"io"
)

const defaultCopyBuffer = 64 * 1024

// ProgressReader reports the cumulative number of bytes read through it.
type ProgressReader struct {
	R      io.Reader
	OnRead func(total int64)
	total  int64
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.R.Read(b)
	if n > 0 {
		p.total += int64(n)
		if p.OnRead != nil {
			p.OnRead(p.total)
		}
	}
	return n, err
}

// Total is the number of bytes read so far.
func (p *ProgressReader) Total() int64 {
	return p.total
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}

// CopyWithContext is io.CopyBuffer that stops between reads once ctx is done.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = defaultCopyBuffer
	}
	// Hide any WriterTo/ReaderFrom so every read goes through ctxReader.
	return io.CopyBuffer(struct{ io.Writer }{dst}, ctxReader{ctx: ctx, r: src}, make([]byte, bufSize))
}
