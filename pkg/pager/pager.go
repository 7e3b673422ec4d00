package pager

import (
	"container/list"
	"io"
	"os"
	"sync"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/crypto"
	"github.com/ashlang/ashdb/pkg/metrics"
	"github.com/ashlang/ashdb/pkg/wal"
)

// backing abstracts the byte store a Pager reads/writes fixed-size pages
// from: a real file, or an in-memory slab for memory-mode databases.
type backing interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

type fileBacking struct{ f *os.File }

func (b *fileBacking) ReadAt(p []byte, off int64) (int, error)  { return b.f.ReadAt(p, off) }
func (b *fileBacking) WriteAt(p []byte, off int64) (int, error) { return b.f.WriteAt(p, off) }
func (b *fileBacking) Truncate(size int64) error                { return b.f.Truncate(size) }
func (b *fileBacking) Sync() error                              { return b.f.Sync() }
func (b *fileBacking) Close() error                              { return b.f.Close() }

// memBacking is a growable in-memory slab, used for memory-mode
// databases that never touch disk.
type memBacking struct {
	mu   sync.Mutex
	data []byte
}

func (b *memBacking) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || off >= int64(len(b.data)) {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, b.data[off:])
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (b *memBacking) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	need := off + int64(len(p))
	if need > int64(len(b.data)) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], p)
	return len(p), nil
}

func (b *memBacking) Truncate(size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if size < int64(len(b.data)) {
		b.data = b.data[:size]
	}
	return nil
}

func (b *memBacking) Sync() error { return nil }
func (b *memBacking) Close() error { return nil }

// Options configures a Pager.
type Options struct {
	Path        string // empty means memory-mode
	CacheFrames int    // number of pages held in the cache at once
	Crypto      crypto.Backend
	DBID        [16]byte
}

func DefaultOptions() Options {
	return Options{CacheFrames: 1024, Crypto: crypto.NoopBackend{}}
}

// frame is one cached page plus its pin/dirty/clock-reference state.
type frame struct {
	page    *Page
	pinned  int
	dirty   bool
	refBit  bool
	element *list.Element // node in the clock ring
}

// Pager is ashdb's page cache: the only component that reads or writes
// PageSize-sized chunks of the backing store.
type Pager struct {
	mu      sync.Mutex
	backing backing
	opts    Options
	metrics *metrics.Registry

	frames   map[uint64]*frame
	clock    *list.List // ring of uint64 page ids, for CLOCK eviction
	numPages uint64     // highest allocated page id + 1
}

// Open opens (creating if absent) a file-backed Pager, or an in-memory
// one when opts.Path is empty.
func Open(opts Options, reg *metrics.Registry) (*Pager, error) {
	var b backing
	var existingSize int64
	if opts.Path == "" {
		b = &memBacking{}
	} else {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "pager: open %q", opts.Path)
		}
		info, err := f.Stat()
		if err != nil {
			return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "pager: stat %q", opts.Path)
		}
		existingSize = info.Size()
		b = &fileBacking{f: f}
	}
	if opts.Crypto == nil {
		opts.Crypto = crypto.NoopBackend{}
	}
	if opts.CacheFrames <= 0 {
		opts.CacheFrames = 1024
	}
	numPages := uint64(existingSize) / onDiskStride
	if numPages == 0 {
		// page id 0 is never handed out: pkg/btree reads a root or
		// right-sibling id of 0 as "no page".
		numPages = 1
	}
	p := &Pager{
		backing:  b,
		opts:     opts,
		metrics:  reg,
		frames:   make(map[uint64]*frame),
		clock:    list.New(),
		numPages: numPages,
	}
	return p, nil
}

func (p *Pager) NumPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages
}

// Allocate reserves a new page id and returns a pinned, zeroed Page of
// the given type. Caller must Unpin it when done.
func (p *Pager) Allocate(typ PageType) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.numPages
	p.numPages++
	page := newPage(id, typ)
	fr := &frame{page: page, pinned: 1, dirty: true}
	p.insertFrameLocked(id, fr)
	return page, nil
}

// Get fetches a page, pinning it. Reads through the cache, faulting in
// from the backing store (decrypting/verifying checksum) on a miss.
func (p *Pager) Get(id uint64) (*Page, error) {
	p.mu.Lock()
	if fr, ok := p.frames[id]; ok {
		fr.pinned++
		fr.refBit = true
		if p.metrics != nil {
			p.metrics.CacheHit()
		}
		p.mu.Unlock()
		return fr.page, nil
	}
	if p.metrics != nil {
		p.metrics.CacheMiss()
	}
	p.mu.Unlock()

	page, err := p.readFromBacking(id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fr, ok := p.frames[id]; ok {
		// someone else faulted it in first; use theirs.
		fr.pinned++
		fr.refBit = true
		return fr.page, nil
	}
	fr := &frame{page: page, pinned: 1}
	p.insertFrameLocked(id, fr)
	return page, nil
}

// on-disk frame layout: checksum(4) || writeCounter(8) || ciphertext.
// writeCounter must be readable before decryption since it's half of
// the AEAD nonce (see pkg/crypto), so it cannot live inside the
// encrypted page body. Every frame reserves aeadOverhead extra bytes on
// disk regardless of whether a Backend is configured, so switching
// crypto on/off never changes the file's page stride.
const (
	onDiskPrefix   = 12
	aeadOverhead   = 16
	onDiskStride   = onDiskPrefix + PageSize + aeadOverhead
)

func (p *Pager) readFromBacking(id uint64) (*Page, error) {
	raw := make([]byte, onDiskStride)
	if _, err := p.backing.ReadAt(raw, int64(id)*onDiskStride); err != nil && err != io.EOF {
		return nil, ashdberrors.Wrap(ashdberrors.KindIO, err, "pager: read page %d", id)
	}
	wantChecksum := getU32(raw[0:4])
	writeCounter := getU64(raw[4:12])
	if !wal.ValidChecksum(raw[onDiskPrefix:], wantChecksum) {
		return nil, &ashdberrors.Corruption{Detail: "pager: checksum mismatch on page"}
	}
	plain, err := p.opts.Crypto.Decrypt(p.opts.DBID, id, writeCounter, raw[onDiskPrefix:])
	if err != nil {
		return nil, ashdberrors.Wrap(ashdberrors.KindCrypto, err, "pager: decrypt page %d", id)
	}
	full := make([]byte, PageSize)
	copy(full, plain)
	page := &Page{ID: id, Data: full}
	page.readHeader()
	if p.metrics != nil {
		p.metrics.PageRead()
	}
	return page, nil
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (p *Pager) insertFrameLocked(id uint64, fr *frame) {
	fr.element = p.clock.PushBack(id)
	p.frames[id] = fr
	if len(p.frames) > p.opts.CacheFrames {
		p.evictLocked()
	}
	if p.metrics != nil {
		p.metrics.SetCacheSize(len(p.frames))
	}
}

// evictLocked runs one pass of CLOCK, skipping pinned and dirty frames
// (dirty pages are never evicted; they stay pinned in effect until a
// checkpoint writes them back, so eviction never triggers a write).
func (p *Pager) evictLocked() {
	start := p.clock.Front()
	e := start
	for i := 0; i < len(p.frames)*2 && e != nil; i++ {
		id := e.Value.(uint64)
		fr := p.frames[id]
		next := e.Next()
		if fr.pinned == 0 && !fr.dirty {
			if fr.refBit {
				fr.refBit = false
			} else {
				delete(p.frames, id)
				p.clock.Remove(e)
				return
			}
		}
		if next == nil {
			next = p.clock.Front()
		}
		e = next
	}
	// nothing evictable this pass (all pinned/dirty/recently used); grow
	// past the nominal cap rather than block.
}

// Unpin releases a reference obtained from Get/Allocate.
func (p *Pager) Unpin(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fr, ok := p.frames[id]; ok && fr.pinned > 0 {
		fr.pinned--
	}
}

// MarkDirty flags a page as modified; it stays pinned against eviction
// until FlushPage or Checkpoint clears the dirty bit.
func (p *Pager) MarkDirty(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fr, ok := p.frames[id]; ok {
		fr.dirty = true
	}
}

// Snapshot returns a copy of a cached page's current bytes, used to
// capture the after-image a committing transaction writes to the WAL.
func (p *Pager) Snapshot(id uint64) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fr, ok := p.frames[id]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(fr.page.Data))
	copy(cp, fr.page.Data)
	return cp, true
}

// Restore overwrites a cached page's bytes with a prior snapshot, used
// by transaction rollback to undo in-memory writes that were never
// flushed to the backing store. The page stays marked dirty: its
// content now matches what was durable before the transaction, but the
// cache has no way to know that cheaply, so the next checkpoint simply
// rewrites the same bytes that are already on disk.
func (p *Pager) Restore(id uint64, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fr, ok := p.frames[id]
	if !ok {
		return
	}
	copy(fr.page.Data, data)
	fr.page.readHeader()
	fr.dirty = true
}

// FlushPage writes one dirty page's current contents to the backing
// store (encrypting + checksumming), clearing its dirty bit. Does not
// fsync; callers batch that at transaction-commit or checkpoint
// boundaries.
func (p *Pager) FlushPage(id uint64) error {
	p.mu.Lock()
	fr, ok := p.frames[id]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	page := fr.page
	page.WriteCounter++
	page.writeHeader()
	p.mu.Unlock()

	cipher, err := p.opts.Crypto.Encrypt(p.opts.DBID, id, page.WriteCounter, page.Data)
	if err != nil {
		return ashdberrors.Wrap(ashdberrors.KindCrypto, err, "pager: encrypt page %d", id)
	}
	out := make([]byte, onDiskStride)
	putU64(out[4:12], page.WriteCounter)
	copy(out[onDiskPrefix:], cipher)
	putU32(out[0:4], wal.ChecksumOf(out[onDiskPrefix:]))
	if _, err := p.backing.WriteAt(out, int64(id)*onDiskStride); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "pager: write page %d", id)
	}
	if p.metrics != nil {
		p.metrics.PageWritten()
	}

	p.mu.Lock()
	fr.dirty = false
	p.mu.Unlock()
	return nil
}

// Checkpoint flushes every dirty page and fsyncs the backing store,
// returning the count flushed.
func (p *Pager) Checkpoint() (int, error) {
	p.mu.Lock()
	dirtyIDs := make([]uint64, 0)
	for id, fr := range p.frames {
		if fr.dirty {
			dirtyIDs = append(dirtyIDs, id)
		}
	}
	p.mu.Unlock()

	for _, id := range dirtyIDs {
		if err := p.FlushPage(id); err != nil {
			return 0, err
		}
	}
	if err := p.backing.Sync(); err != nil {
		return 0, ashdberrors.Wrap(ashdberrors.KindIO, err, "pager: fsync during checkpoint")
	}
	return len(dirtyIDs), nil
}

func (p *Pager) Close() error {
	if _, err := p.Checkpoint(); err != nil {
		return err
	}
	return p.backing.Close()
}
