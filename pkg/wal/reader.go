package wal

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
)

// Reader scans a WAL file sequentially, used by recovery.
type Reader struct {
	f *os.File
}

func OpenReader(opts Options) (*Reader, error) {
	path := filepath.Join(opts.DirPath, "wal.log")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Reader{}, nil
		}
		return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: open %q for reading", path)
	}
	return &Reader{f: f}, nil
}

// Next returns the next record, io.EOF when the log is exhausted, or a
// Corruption error if a header/payload fails its checksum — recovery
// treats a torn final record (the last write before a crash) as a clean
// end-of-log rather than a hard failure, since a torn header or short
// payload is exactly what an interrupted Append leaves behind.
func (r *Reader) Next() (*Record, error) {
	if r.f == nil {
		return nil, io.EOF
	}
	var headerBuf [HeaderSize]byte
	n, err := io.ReadFull(r.f, headerBuf[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: read header")
	}
	if n < HeaderSize {
		return nil, io.EOF
	}
	var h Header
	h.Decode(headerBuf[:])
	if h.Magic != Magic {
		return nil, io.EOF // torn write at the tail: stop replay here
	}
	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r.f, payload); err != nil {
		return nil, io.EOF // torn payload: same treatment
	}
	if !ValidChecksum(payload, h.CRC32) {
		return nil, &ashdberrors.Corruption{Detail: "wal: checksum mismatch, truncated log at this record"}
	}
	return &Record{Header: h, Payload: payload}, nil
}

func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}
