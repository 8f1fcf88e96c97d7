package eventlog

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/nosqlbench/nbdatatools-sub010/internal/proto"
)

// DefaultRotateBytes is the size at which FileSink compresses and rotates
// the active log file.
const DefaultRotateBytes = 8 * 1024 * 1024

// FileSink persists events as plain text lines to path, rotating into a
// compressed archive once the active file exceeds maxBytes. Compression
// uses a pooled encoder (klauspost/compress/zstd, the same pooling idiom
// as the teacher's pack writer), falling back to zlib when zstd is not
// the negotiated choice.
type FileSink struct {
	mu sync.Mutex

	path     string
	maxBytes int64
	useZstd  bool
	gen      int

	file    *os.File
	written int64

	zstdPool sync.Pool
	zlibPool sync.Pool
}

// NewFileSink opens (creating if necessary) an event log at path. preferZstd
// selects the rotation archive's compression codec via the same
// negotiation policy the wire protocol uses between local preference and
// advertised support; since rotation is purely local, the "remote
// capabilities" list is just the two codecs this process always supports.
func NewFileSink(path string, maxBytes int64, preferZstd bool) (*FileSink, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultRotateBytes
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("eventlog: stat %s: %w", path, err)
	}

	codec := proto.NegotiateCompression([]string{"zstd", "zlib"}, preferZstd)

	return &FileSink{
		path:     path,
		maxBytes: maxBytes,
		useZstd:  codec == "zstd",
		file:     f,
		written:  info.Size(),
		zstdPool: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
				return enc
			},
		},
		zlibPool: sync.Pool{
			New: func() interface{} {
				return &bytes.Buffer{}
			},
		},
	}, nil
}

// Emit implements Sink. On error the event is silently dropped (logging
// is best-effort and must never block the download path).
func (s *FileSink) Emit(code string, fields map[string]string) {
	line := formatLine(code, fields)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.file.WriteString(line)
	if err != nil {
		return
	}
	s.written += int64(n)

	if s.written >= s.maxBytes {
		s.rotateLocked()
	}
}

// rotateLocked compresses the current log file into a numbered archive
// and starts a fresh empty one. Caller must hold s.mu.
func (s *FileSink) rotateLocked() {
	if err := s.file.Close(); err != nil {
		return
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.reopenLocked()
		return
	}

	s.gen++
	ext := "zlib"
	if s.useZstd {
		ext = "zst"
	}
	archivePath := fmt.Sprintf("%s.%d.%s", s.path, s.gen, ext)

	if err := s.writeCompressed(archivePath, raw); err == nil {
		os.Remove(s.path)
	}

	s.reopenLocked()
}

func (s *FileSink) reopenLocked() {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	s.file = f
	s.written = 0
}

func (s *FileSink) writeCompressed(archivePath string, raw []byte) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("eventlog: create archive %s: %w", archivePath, err)
	}
	defer out.Close()

	if s.useZstd {
		return s.writeZstd(out, raw)
	}
	return s.writeZlib(out, raw)
}

func (s *FileSink) writeZstd(w io.Writer, raw []byte) error {
	enc := s.zstdPool.Get().(*zstd.Encoder)
	defer s.zstdPool.Put(enc)
	enc.Reset(w)
	if _, err := enc.Write(raw); err != nil {
		return err
	}
	return enc.Close()
}

func (s *FileSink) writeZlib(w io.Writer, raw []byte) error {
	buf := s.zlibPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer s.zlibPool.Put(buf)

	zw := zlib.NewWriter(buf)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Close flushes and closes the active log file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("eventlog: sync: %w", err)
	}
	return s.file.Close()
}
