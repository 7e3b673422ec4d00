package storage

import (
	"sync"

	"github.com/ashlang/ashdb/pkg/btree"
	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/metrics"
	"github.com/ashlang/ashdb/pkg/wal"
)

// TransactionRegistry tracks every active transaction's begin-LSN. It is
// grounded on the teacher's pkg/storage/transaction_manager.go
// TransactionRegistry/minActiveLSN, but repurposed: the teacher uses the
// minimum active LSN to decide which row versions an MVCC reader may
// still see; this spec has no MVCC, so here the same minimum bounds how
// far the WAL can be truncated at checkpoint time — a checkpoint must
// never discard a record a still-open transaction might need to replay
// if it aborts after a crash.
type TransactionRegistry struct {
	mu     sync.Mutex
	active map[uint64]uint64 // txID -> beginLSN
}

func NewTransactionRegistry() *TransactionRegistry {
	return &TransactionRegistry{active: map[uint64]uint64{}}
}

func (r *TransactionRegistry) Register(txID, beginLSN uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[txID] = beginLSN
}

func (r *TransactionRegistry) Unregister(txID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, txID)
}

// MinActiveLSN returns the smallest begin-LSN among active transactions,
// or fallback if none are active.
func (r *TransactionRegistry) MinActiveLSN(fallback uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	min := fallback
	first := true
	for _, lsn := range r.active {
		if first || lsn < min {
			min = lsn
			first = false
		}
	}
	return min
}

func (r *TransactionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// IsolationLevel is carried per transaction per spec §3; ashdb only
// implements ReadCommitted semantics (every read sees the latest
// committed state at the time it runs, under the single-writer
// discipline pkg/conn and pkg/executor enforce), but the level is still
// recorded so a client asking for Serializable gets an explicit error
// rather than silent downgrade.
type IsolationLevel uint8

const (
	ReadCommitted IsolationLevel = iota
	Serializable
)

// Txn is one transaction's mutable state: which pages it has written
// (for WAL after-images at commit and before-images for rollback), and
// its isolation/writability.
type Txn struct {
	ID       uint64
	Writable bool
	Level    IsolationLevel

	engine  *Engine
	beginLSN uint64
	before   map[uint64][]byte // pageID -> first-write before-image
	done     bool
}

// BeforeWrite implements btree.Tracker: records the first pre-write
// image of a page this transaction touches.
func (t *Txn) BeforeWrite(pageID uint64, current []byte) {
	if _, seen := t.before[pageID]; !seen {
		t.before[pageID] = current
	}
}

func (t *Txn) touchedPages() []uint64 {
	ids := make([]uint64, 0, len(t.before))
	for id := range t.before {
		ids = append(ids, id)
	}
	return ids
}

var _ btree.Tracker = (*Txn)(nil)

// Commit appends a PageWrite WAL record per touched page followed by a
// Commit record, fsyncs, then releases the single-writer slot if this
// was a write transaction.
func (t *Txn) Commit() error {
	if t.done {
		return ashdberrors.New(ashdberrors.KindInternal, "storage: commit called twice on transaction %d", t.ID)
	}
	t.done = true
	defer t.engine.endTxn(t)

	if t.Writable && t.engine.wal != nil {
		for _, pageID := range t.touchedPages() {
			after, ok := t.engine.pager.Snapshot(pageID)
			if !ok {
				continue
			}
			if _, err := t.engine.wal.Append(wal.KindPageWrite, wal.EncodePageWrite(t.ID, pageID, after)); err != nil {
				return err
			}
		}
		if _, err := t.engine.wal.Append(wal.KindCommit, wal.EncodeTxID(t.ID)); err != nil {
			return err
		}
		if err := t.engine.wal.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Rollback restores every touched page's pre-transaction bytes and
// releases the single-writer slot.
func (t *Txn) Rollback() error {
	if t.done {
		return ashdberrors.New(ashdberrors.KindInternal, "storage: rollback called twice on transaction %d", t.ID)
	}
	t.done = true
	defer t.engine.endTxn(t)

	for pageID, before := range t.before {
		t.engine.pager.Restore(pageID, before)
	}
	if t.Writable && t.engine.wal != nil {
		if _, err := t.engine.wal.Append(wal.KindAbort, wal.EncodeTxID(t.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransactionRegistry) setMetrics(reg *metrics.Registry) {
	if reg != nil {
		reg.SetTxActive(r.Count())
	}
}
