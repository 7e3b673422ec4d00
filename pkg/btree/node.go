// Package btree implements ashdb's B+tree: the ordered index structure
// backing every table's primary key and every secondary index. Node
// shape and split/merge/borrow algorithms are ported from the teacher's
// pkg/btree/node.go and btree.go (itself an in-memory B+tree) onto
// pager.Page-backed storage: each Node is encoded into one Page's usable
// space and faulted in/flushed through the shared Pager cache, so the
// tree's durability and eviction behavior come from pkg/pager rather
// than from Go's own heap and GC.
package btree

import (
	"fmt"
	"sort"
	"sync"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/types"
)

// Node is a B+tree node, decoded from (and re-encoded to) one page.
type Node struct {
	PageID   uint64
	Keys     []types.Comparable
	Values   [][]byte // leaf payloads, parallel to Keys; nil for internal nodes
	Children []uint64 // child page ids, parallel to Keys+1; nil for leaves
	Leaf     bool
	Next     uint64 // next leaf's page id in left-to-right order, 0 if none
	N        int
}

func newNode(pageID uint64, leaf bool) *Node {
	return &Node{
		PageID: pageID,
		Leaf:   leaf,
	}
}

func (tr *Tree) isFull(n *Node) bool { return n.N == 2*tr.t-1 }

// findIndex returns the index of the first key in n at or above key,
// i.e. the position key would occupy if inserted into this node.
func (n *Node) findIndex(key types.Comparable) int {
	return sort.Search(n.N, func(i int) bool { return n.Keys[i].Compare(key) >= 0 })
}

// Store is the page-load/allocate/save/free contract a Tree needs; kept
// as an interface (rather than importing pkg/pager directly) so tests
// can swap in a bare in-memory store.
type Store interface {
	Load(pageID uint64) (*Node, error)
	New(leaf bool) (*Node, error) // allocates a fresh page, returns an empty Node for it
	Save(n *Node) error
	Free(pageID uint64) error
}

// Tree is a B+tree keyed on types.Comparable, persisted through a Store.
type Tree struct {
	mu     sync.RWMutex
	store  Store
	rootID uint64
	t      int
	unique bool
}

// Open wraps an already-allocated root page as a Tree, or creates one
// via store.New if rootID is 0.
func Open(store Store, rootID uint64, degree int, unique bool) (*Tree, error) {
	if degree < 2 {
		degree = 64
	}
	tr := &Tree{store: store, rootID: rootID, t: degree, unique: unique}
	if rootID == 0 {
		root, err := store.New(true)
		if err != nil {
			return nil, err
		}
		tr.rootID = root.PageID
		if err := store.Save(root); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

func (tr *Tree) RootID() uint64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.rootID
}

// Get returns the value stored under key, or ok=false.
func (tr *Tree) Get(key types.Comparable) (value []byte, ok bool, err error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n, err := tr.store.Load(tr.rootID)
	if err != nil {
		return nil, false, err
	}
	for !n.Leaf {
		i := n.findIndex(key)
		if i < n.N && n.Keys[i].Compare(key) == 0 {
			i++
		}
		n, err = tr.store.Load(n.Children[i])
		if err != nil {
			return nil, false, err
		}
	}
	i := n.findIndex(key)
	if i < n.N && n.Keys[i].Compare(key) == 0 {
		return n.Values[i], true, nil
	}
	return nil, false, nil
}

// Insert adds key/value. If unique and key already exists, returns a
// DuplicateKey error; otherwise the existing key's value is overwritten
// (secondary, non-unique index entries carry the owning row's key inside
// the Comparable itself, per types.IndexKey, so an equal key never
// arises there in practice).
func (tr *Tree) Insert(key types.Comparable, value []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	root, err := tr.store.Load(tr.rootID)
	if err != nil {
		return err
	}
	if tr.isFull(root) {
		newRoot, err := tr.store.New(false)
		if err != nil {
			return err
		}
		newRoot.Children = append(newRoot.Children, root.PageID)
		if err := tr.splitChild(newRoot, 0, root); err != nil {
			return err
		}
		tr.rootID = newRoot.PageID
		root = newRoot
	}
	return tr.insertNonFull(root, key, value, false)
}

// Put inserts key/value, overwriting any existing value for key
// regardless of uniqueness — the semantics an UPDATE needs, as opposed
// to Insert's INSERT-statement semantics where a duplicate primary key
// is an error.
func (tr *Tree) Put(key types.Comparable, value []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	root, err := tr.store.Load(tr.rootID)
	if err != nil {
		return err
	}
	if tr.isFull(root) {
		newRoot, err := tr.store.New(false)
		if err != nil {
			return err
		}
		newRoot.Children = append(newRoot.Children, root.PageID)
		if err := tr.splitChild(newRoot, 0, root); err != nil {
			return err
		}
		tr.rootID = newRoot.PageID
		root = newRoot
	}
	return tr.insertNonFull(root, key, value, true)
}

func (tr *Tree) insertNonFull(n *Node, key types.Comparable, value []byte, overwrite bool) error {
	if n.Leaf {
		idx := n.findIndex(key)
		if idx < n.N && n.Keys[idx].Compare(key) == 0 {
			if tr.unique && !overwrite {
				return &ashdberrors.DuplicateKey{Key: fmt.Sprintf("%v", key)}
			}
			n.Values[idx] = value
			return tr.store.Save(n)
		}
		n.Keys = insertComparableAt(n.Keys, idx, key)
		n.Values = insertBytesAt(n.Values, idx, value)
		n.N++
		return tr.store.Save(n)
	}

	i := n.findIndex(key)
	if i < n.N && n.Keys[i].Compare(key) == 0 {
		i++
	}
	child, err := tr.store.Load(n.Children[i])
	if err != nil {
		return err
	}
	if tr.isFull(child) {
		if err := tr.splitChild(n, i, child); err != nil {
			return err
		}
		if key.Compare(n.Keys[i]) >= 0 {
			i++
		}
		child, err = tr.store.Load(n.Children[i])
		if err != nil {
			return err
		}
	}
	return tr.insertNonFull(child, key, value, overwrite)
}

func (tr *Tree) splitChild(parent *Node, i int, y *Node) error {
	t := tr.t
	z, err := tr.store.New(y.Leaf)
	if err != nil {
		return err
	}

	if y.Leaf {
		mid := t - 1
		z.N = y.N - mid
		z.Keys = append(z.Keys, y.Keys[mid:]...)
		z.Values = append(z.Values, y.Values[mid:]...)

		y.Keys = y.Keys[:mid]
		y.Values = y.Values[:mid]
		y.N = mid

		z.Next = y.Next
		y.Next = z.PageID

		parent.Keys = insertComparableAt(parent.Keys, i, z.Keys[0])
	} else {
		mid := t - 1
		z.N = t - 1
		z.Keys = append(z.Keys, y.Keys[mid+1:]...)
		z.Children = append(z.Children, y.Children[mid+1:]...)

		upKey := y.Keys[mid]

		y.Keys = y.Keys[:mid]
		y.Children = y.Children[:mid+1]
		y.N = mid

		parent.Keys = insertComparableAt(parent.Keys, i, upKey)
	}

	parent.Children = insertUint64At(parent.Children, i+1, z.PageID)
	parent.N++

	if err := tr.store.Save(y); err != nil {
		return err
	}
	if err := tr.store.Save(z); err != nil {
		return err
	}
	return tr.store.Save(parent)
}

func insertComparableAt(s []types.Comparable, i int, v types.Comparable) []types.Comparable {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertBytesAt(s [][]byte, i int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertUint64At(s []uint64, i int, v uint64) []uint64 {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
