package wal

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/metrics"
)

// syncer is satisfied by *os.File; kept as an interface so tests can
// substitute an in-memory stand-in without touching a real file.
type syncer interface {
	io.Writer
	Sync() error
	Close() error
}

// Writer appends Records to a single log file, optionally fsyncing per
// Options.SyncPolicy via a background goroutine.
type Writer struct {
	mu      sync.Mutex
	file    syncer
	buf     *bufio.Writer
	opts    Options
	lastLSN uint64
	unsynced int64
	metrics *metrics.Registry

	cancel context.CancelFunc
	done   chan struct{}
}

// Open opens (creating if absent) the WAL file at opts.DirPath/wal.log
// and starts the background sync goroutine for SyncInterval policy.
func Open(opts Options, reg *metrics.Registry) (*Writer, error) {
	if err := os.MkdirAll(opts.DirPath, 0o755); err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: create directory %q", opts.DirPath)
	}
	path := filepath.Join(opts.DirPath, "wal.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: open %q", path)
	}
	w := &Writer{
		file:    f,
		buf:     bufio.NewWriterSize(f, opts.BufferSize),
		opts:    opts,
		metrics: reg,
	}
	if opts.SyncPolicy == SyncInterval {
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		w.done = make(chan struct{})
		go w.syncLoop(ctx)
	}
	return w, nil
}

func (w *Writer) syncLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.opts.SyncIntervalDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			_ = w.flushAndSyncLocked()
			w.mu.Unlock()
		}
	}
}

// Append writes one record, returning its assigned LSN. Depending on
// opts.SyncPolicy it may fsync before returning (SyncEveryWrite) or once
// unsynced bytes cross SyncBatchBytes (SyncBatch); SyncInterval defers
// to the background goroutine, and the record may stay in the Writer's
// in-process buffer until that goroutine or a Sync flushes it.
func (w *Writer) Append(kind Kind, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := acquireRecord()
	defer releaseRecord(rec)

	w.lastLSN++
	lsn := w.lastLSN
	rec.Header = Header{
		Magic:      Magic,
		Version:    Version,
		EntryType:  uint8(kind),
		LSN:        lsn,
		PayloadLen: uint32(len(payload)),
		CRC32:      ChecksumOf(payload),
	}
	rec.Payload = payload

	n, err := rec.WriteTo(w.buf)
	if err != nil {
		return 0, ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: append record")
	}
	w.unsynced += n
	if w.metrics != nil {
		w.metrics.WALAppend()
	}

	switch w.opts.SyncPolicy {
	case SyncEveryWrite:
		if err := w.flushAndSyncLocked(); err != nil {
			return 0, err
		}
	case SyncBatch:
		if w.unsynced >= w.opts.SyncBatchBytes {
			if err := w.flushAndSyncLocked(); err != nil {
				return 0, err
			}
		}
	}
	return lsn, nil
}

func (w *Writer) flushAndSyncLocked() error {
	if err := w.buf.Flush(); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: flush buffer")
	}
	if err := w.file.Sync(); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: fsync")
	}
	w.unsynced = 0
	if w.metrics != nil {
		w.metrics.WALSync()
	}
	return nil
}

// Sync forces a flush+fsync regardless of policy; callers that just
// committed a transaction and must guarantee durability before
// returning call this explicitly (SyncInterval/SyncBatch policies defer
// otherwise).
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushAndSyncLocked()
}

func (w *Writer) LastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

// SetLastLSN seeds the LSN counter after recovery replays an existing
// log, so freshly appended records continue the sequence rather than
// restarting at 1.
func (w *Writer) SetLastLSN(lsn uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastLSN = lsn
}

func (w *Writer) Close() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushAndSyncLocked(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Truncate discards the WAL file's contents, used right after a
// checkpoint makes every prior record redundant. Resets the LSN counter
// starting point to upToLSN so recovery after a crash mid-checkpoint
// still sees a monotonic sequence.
func (w *Writer) Truncate(upToLSN uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: flush before truncate")
	}
	f, ok := w.file.(*os.File)
	if !ok {
		return nil
	}
	if err := f.Truncate(0); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: truncate")
	}
	if _, err := f.Seek(0, 0); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "wal: seek after truncate")
	}
	w.buf.Reset(f)
	w.lastLSN = upToLSN
	return nil
}
