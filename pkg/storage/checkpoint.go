package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/v2/bson"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
)

// CheckpointManager persists the Catalog as a BSON document, tagged by
// the WAL LSN it is consistent as of, using the teacher's
// write-temp-then-rename + keep-latest-only pattern
// (pkg/storage/checkpoint.go), swapping the teacher's bespoke
// SerializeBPlusTree for bson.Marshal since the catalog is a small,
// schema-shaped document rather than a tree of rows.
type CheckpointManager struct {
	mu       sync.Mutex
	basePath string
}

func NewCheckpointManager(basePath string) *CheckpointManager {
	return &CheckpointManager{basePath: basePath}
}

func (cm *CheckpointManager) filename(lsn uint64) string {
	return filepath.Join(cm.basePath, "catalog_"+strconv.FormatUint(lsn, 10)+".chk")
}

func (cm *CheckpointManager) Save(catalog *Catalog, lsn uint64) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	raw, err := bson.Marshal(catalog)
	if err != nil {
		return ashdberrors.Wrap(ashdberrors.KindInternal, err, "storage: marshal catalog checkpoint")
	}
	data, err := compressCheckpoint(raw)
	if err != nil {
		return ashdberrors.Wrap(ashdberrors.KindInternal, err, "storage: compress catalog checkpoint")
	}
	path := cm.filename(lsn)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "storage: write checkpoint temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return ashdberrors.Wrap(ashdberrors.KindIO, err, "storage: rename checkpoint file")
	}
	return cm.cleanOlderThan(lsn)
}

func (cm *CheckpointManager) cleanOlderThan(keepLSN uint64) error {
	entries, err := os.ReadDir(cm.basePath)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "catalog_") || !strings.HasSuffix(name, ".chk") {
			continue
		}
		lsnStr := strings.TrimSuffix(strings.TrimPrefix(name, "catalog_"), ".chk")
		lsn, err := strconv.ParseUint(lsnStr, 10, 64)
		if err == nil && lsn < keepLSN {
			_ = os.Remove(filepath.Join(cm.basePath, name))
		}
	}
	return nil
}

// LoadLatest returns the most recent checkpointed Catalog and the LSN it
// was taken at, or a fresh empty Catalog and LSN 0 if none exists.
func (cm *CheckpointManager) LoadLatest() (*Catalog, uint64, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	entries, err := os.ReadDir(cm.basePath)
	if err != nil {
		return NewCatalog(), 0, nil
	}
	type found struct {
		lsn  uint64
		name string
	}
	var candidates []found
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "catalog_") || !strings.HasSuffix(name, ".chk") {
			continue
		}
		lsnStr := strings.TrimSuffix(strings.TrimPrefix(name, "catalog_"), ".chk")
		lsn, err := strconv.ParseUint(lsnStr, 10, 64)
		if err == nil {
			candidates = append(candidates, found{lsn, name})
		}
	}
	if len(candidates) == 0 {
		return NewCatalog(), 0, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].lsn > candidates[j].lsn })
	latest := candidates[0]

	data, err := os.ReadFile(filepath.Join(cm.basePath, latest.name))
	if err != nil {
		return nil, 0, ashdberrors.Wrap(ashdberrors.KindIO, err, "storage: read checkpoint file")
	}
	raw, err := decompressCheckpoint(data)
	if err != nil {
		return nil, 0, ashdberrors.Wrap(ashdberrors.KindCorruption, err, "storage: decompress catalog checkpoint")
	}
	catalog := NewCatalog()
	if err := bson.Unmarshal(raw, catalog); err != nil {
		return nil, 0, ashdberrors.Wrap(ashdberrors.KindCorruption, err, "storage: unmarshal catalog checkpoint")
	}
	return catalog, latest.lsn, nil
}

// compressCheckpoint/decompressCheckpoint wrap the BSON catalog document
// in zstd. The catalog checkpoint is the only place ashdb compresses
// anything; pkg/pager writes pages uncompressed.
func compressCheckpoint(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

func decompressCheckpoint(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
