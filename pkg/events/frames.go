package events

import (
	"bytes"
	"context"
	"io"
	"strings"
)

const (
	frameDelimiter = "\r\n\r\n"
	dataPrefix     = "data: "
)

// FrameDecoder turns a raw incremental byte stream into an ordered sequence
// of complete protocol frames. Chunk boundaries carry no meaning: the
// decoder accumulates bytes across reads and only splits on the fixed
// four-byte delimiter, so multi-byte text crossing a chunk boundary is never
// torn (the delimiter is pure ASCII and text conversion happens only on
// complete frames).
//
// The fixed "data: " prefix is stripped before emission and frames that are
// empty after trimming are skipped. When the source signals end-of-stream,
// Next returns io.EOF and any partial frame left in the buffer is discarded.
type FrameDecoder struct {
	r      io.Reader
	buf    []byte
	srcErr error
	chunk  []byte
}

func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{
		r:     r,
		chunk: make([]byte, 4096),
	}
}

// Next returns the next complete frame. The context is checked before every
// read so a cancelled cycle stops consuming promptly; callers still need to
// close the underlying body to unblock a read already in flight.
func (d *FrameDecoder) Next(ctx context.Context) (string, error) {
	for {
		if frame, ok := d.popFrame(); ok {
			return frame, nil
		}
		if d.srcErr != nil {
			return "", d.srcErr
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.buf = append(d.buf, d.chunk[:n]...)
		}
		if err != nil {
			d.srcErr = err
		}
	}
}

// popFrame consumes buffered data up to the next delimiter, skipping frames
// that are empty after trimming.
func (d *FrameDecoder) popFrame() (string, bool) {
	for {
		idx := bytes.Index(d.buf, []byte(frameDelimiter))
		if idx < 0 {
			return "", false
		}
		frame := strings.TrimSpace(string(d.buf[:idx]))
		d.buf = d.buf[idx+len(frameDelimiter):]
		if frame == "" {
			continue
		}
		return strings.TrimPrefix(frame, dataPrefix), true
	}
}
