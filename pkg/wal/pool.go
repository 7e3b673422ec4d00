package wal

import "sync"

// recordPool recycles Record and payload buffers across Append calls so
// a hot insert loop doesn't allocate a Record per call, grounded on the
// teacher's pkg/wal/pool.go sync.Pool reuse pattern.
var recordPool = sync.Pool{
	New: func() any { return &Record{} },
}

func acquireRecord() *Record {
	r := recordPool.Get().(*Record)
	r.Header = Header{}
	r.Payload = r.Payload[:0]
	return r
}

func releaseRecord(r *Record) {
	recordPool.Put(r)
}

var bufferPool = sync.Pool{
	New: func() any { b := make([]byte, 0, 4096); return &b },
}

func acquireBuffer() []byte {
	b := bufferPool.Get().(*[]byte)
	return (*b)[:0]
}

func releaseBuffer(b []byte) {
	bufferPool.Put(&b)
}
