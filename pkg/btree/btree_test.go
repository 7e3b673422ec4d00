package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ashlang/ashdb/pkg/metrics"
	"github.com/ashlang/ashdb/pkg/pager"
	"github.com/ashlang/ashdb/pkg/types"
)

func newTestTree(t *testing.T, degree int, unique bool) *Tree {
	t.Helper()
	p, err := pager.Open(pager.Options{CacheFrames: 64}, (*metrics.Registry)(nil))
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	store := NewPageStore(p, types.RowKeyCodec())
	tr, err := Open(store, 0, degree, unique)
	if err != nil {
		t.Fatalf("open tree: %v", err)
	}
	return tr
}

func rk(i int) types.RowKey { return types.RowKey{V: types.Integer(int64(i))} }

func TestInsertAndGet(t *testing.T) {
	tr := newTestTree(t, 4, true)
	for i := 0; i < 200; i++ {
		if err := tr.Insert(rk(i), []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for i := 0; i < 200; i++ {
		v, ok, err := tr.Get(rk(i))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("key %d missing", i)
		}
		if string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("key %d: got %q", i, v)
		}
	}
}

func TestDuplicateKeyRejectedWhenUnique(t *testing.T) {
	tr := newTestTree(t, 4, true)
	if err := tr.Insert(rk(1), []byte("a")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tr.Insert(rk(1), []byte("b")); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestRandomInsertOrderScansSorted(t *testing.T) {
	tr := newTestTree(t, 3, true)
	perm := rand.New(rand.NewSource(1)).Perm(500)
	for _, i := range perm {
		if err := tr.Insert(rk(i), []byte{byte(i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	c, err := tr.SeekFirst()
	if err != nil {
		t.Fatalf("seek first: %v", err)
	}
	prev := -1
	count := 0
	for {
		k, _, ok, err := c.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		cur := int(k.(types.RowKey).V.Integer)
		if cur <= prev {
			t.Fatalf("scan not sorted: %d after %d", cur, prev)
		}
		prev = cur
		count++
	}
	if count != 500 {
		t.Fatalf("expected 500 keys, scanned %d", count)
	}
}

func TestDeleteRemovesKeyAndRebalances(t *testing.T) {
	tr := newTestTree(t, 3, true)
	for i := 0; i < 100; i++ {
		if err := tr.Insert(rk(i), []byte{byte(i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for i := 0; i < 100; i += 2 {
		ok, err := tr.Delete(rk(i))
		if err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("delete %d: not found", i)
		}
	}
	for i := 0; i < 100; i++ {
		_, ok, err := tr.Get(rk(i))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if i%2 == 0 && ok {
			t.Fatalf("key %d should have been deleted", i)
		}
		if i%2 == 1 && !ok {
			t.Fatalf("key %d should still be present", i)
		}
	}
}

func TestSeekPositionsAtLowerBound(t *testing.T) {
	tr := newTestTree(t, 4, true)
	for _, i := range []int{10, 20, 30, 40, 50} {
		if err := tr.Insert(rk(i), []byte{byte(i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	c, err := tr.Seek(rk(25))
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	k, _, ok, err := c.Next()
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if got := int(k.(types.RowKey).V.Integer); got != 30 {
		t.Fatalf("seek(25).Next() = %d, want 30", got)
	}
}
