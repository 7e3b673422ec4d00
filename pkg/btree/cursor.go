package btree

import "github.com/ashlang/ashdb/pkg/types"

// Cursor walks leaf cells left to right starting at or after a seek key,
// following the leaf-level Next chain. Grounded on the teacher's
// FindLeafLowerBound + leaf-linked-list traversal (pkg/storage/cursor.go
// walks the same chain one level up, over rows rather than leaf cells).
type Cursor struct {
	tr      *Tree
	leaf    *Node
	idx     int
	started bool
}

// SeekFirst positions a cursor at the smallest key present.
func (tr *Tree) SeekFirst() (*Cursor, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n, err := tr.store.Load(tr.rootID)
	if err != nil {
		return nil, err
	}
	for !n.Leaf {
		n, err = tr.store.Load(n.Children[0])
		if err != nil {
			return nil, err
		}
	}
	return &Cursor{tr: tr, leaf: n, idx: 0}, nil
}

// Seek positions a cursor at the first key >= key.
func (tr *Tree) Seek(key types.Comparable) (*Cursor, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n, err := tr.store.Load(tr.rootID)
	if err != nil {
		return nil, err
	}
	for !n.Leaf {
		i := n.findIndex(key)
		if i < n.N && n.Keys[i].Compare(key) == 0 {
			i++
		}
		n, err = tr.store.Load(n.Children[i])
		if err != nil {
			return nil, err
		}
	}
	return &Cursor{tr: tr, leaf: n, idx: n.findIndex(key)}, nil
}

// Next advances the cursor, returning ok=false once past the last key.
func (c *Cursor) Next() (key types.Comparable, value []byte, ok bool, err error) {
	c.tr.mu.RLock()
	defer c.tr.mu.RUnlock()
	for {
		if c.idx < c.leaf.N {
			key, value = c.leaf.Keys[c.idx], c.leaf.Values[c.idx]
			c.idx++
			return key, value, true, nil
		}
		if c.leaf.Next == 0 {
			return nil, nil, false, nil
		}
		next, err := c.tr.store.Load(c.leaf.Next)
		if err != nil {
			return nil, nil, false, err
		}
		c.leaf = next
		c.idx = 0
	}
}
