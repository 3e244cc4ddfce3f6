package frame

import (
	"io"
	"net/http"
)

type errFlusher interface {
	Flush() error
}

// Writer writes whole frames to an underlying stream and flushes after each
// one, so a frame is never left sitting in a buffer.
type Writer struct {
	w     io.Writer
	flush func() error
	buf   []byte
}

// NewWriter wraps w. Flushing is enabled when w implements http.Flusher or
// Flush() error; otherwise frames are written as-is.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w, flush: func() error { return nil }}
	switch f := w.(type) {
	case errFlusher:
		fw.flush = f.Flush
	case http.Flusher:
		fw.flush = func() error {
			f.Flush()
			return nil
		}
	}
	return fw
}

// WriteEvent writes a single event frame and flushes it.
func (fw *Writer) WriteEvent(ev Event) error {
	buf, err := AppendEvent(fw.buf[:0], ev)
	if err != nil {
		return err
	}
	fw.buf = buf
	return fw.write(buf)
}

// WriteComment writes a comment frame and flushes it.
func (fw *Writer) WriteComment(text string) error {
	return fw.write(EncodeComment(text))
}

func (fw *Writer) write(p []byte) error {
	if _, err := fw.w.Write(p); err != nil {
		return err
	}
	return fw.flush()
}
