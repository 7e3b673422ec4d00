package wal

import "time"

// SyncPolicy controls when the WAL calls fsync, per spec §4.2.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every append. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota
	// SyncInterval fsyncs on a background timer.
	SyncInterval
	// SyncBatch fsyncs once accumulated unsynced bytes cross a threshold.
	SyncBatch
)

type Options struct {
	DirPath              string
	BufferSize           int
	SyncPolicy           SyncPolicy
	SyncIntervalDuration time.Duration
	SyncBatchBytes       int64
}

func DefaultOptions() Options {
	return Options{
		DirPath:              "./wal",
		BufferSize:           64 * 1024,
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024,
	}
}
