package btree

import (
	"encoding/binary"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/pager"
	"github.com/ashlang/ashdb/pkg/types"
)

// Tracker lets a caller (pkg/storage's transaction) observe the first
// write to each page so it can capture a before-image for rollback,
// without the B-tree itself knowing anything about transactions.
type Tracker interface {
	BeforeWrite(pageID uint64, current []byte)
}

// PageStore implements Store on top of a pager.Pager: each Node is
// encoded into one Page's usable bytes and faulted in/flushed through
// the shared cache, so the tree's durability comes from the pager+WAL
// rather than from holding everything in Go's heap.
type PageStore struct {
	Pager   *pager.Pager
	Codec   types.KeyCodec
	Tracker Tracker // set by the caller for the duration of one write transaction; nil otherwise
}

func NewPageStore(p *pager.Pager, codec types.KeyCodec) *PageStore {
	return &PageStore{Pager: p, Codec: codec}
}

func (s *PageStore) New(leaf bool) (*Node, error) {
	typ := pager.PageTypeInternal
	if leaf {
		typ = pager.PageTypeLeaf
	}
	page, err := s.Pager.Allocate(typ)
	if err != nil {
		return nil, err
	}
	s.Pager.Unpin(page.ID)
	n := newNode(page.ID, leaf)
	return n, nil
}

func (s *PageStore) Load(pageID uint64) (*Node, error) {
	page, err := s.Pager.Get(pageID)
	if err != nil {
		return nil, err
	}
	defer s.Pager.Unpin(pageID)
	return s.decode(page)
}

func (s *PageStore) Save(n *Node) error {
	page, err := s.Pager.Get(n.PageID)
	if err != nil {
		return err
	}
	defer s.Pager.Unpin(n.PageID)
	if s.Tracker != nil {
		before := make([]byte, len(page.Data))
		copy(before, page.Data)
		s.Tracker.BeforeWrite(n.PageID, before)
	}
	if err := s.encode(n, page); err != nil {
		return err
	}
	s.Pager.MarkDirty(n.PageID)
	return nil
}

func (s *PageStore) Free(pageID uint64) error {
	// Free does nothing: freed page ids are never reused by this
	// simplified allocator, and the page keeps its last contents (and is
	// still written back at checkpoint if dirty). Nothing in the tree
	// references it after merge/Delete removes the only pointer to it.
	return nil
}

// encode writes a Node into page's usable space as a uvarint key count
// followed, for a leaf, by one [keyLen uvarint][key][valueLen uvarint]
// [value] cell per key, or, for an internal node, by the count's
// [keyLen uvarint][key] entries and then count+1 little-endian 8-byte
// child page ids.
func (s *PageStore) encode(n *Node, page *pager.Page) error {
	buf := page.Usable()[:0]
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		m := binary.PutUvarint(scratch[:], v)
		buf = append(buf, scratch[:m]...)
	}

	putUvarint(uint64(n.N))
	if n.Leaf {
		page.Type = pager.PageTypeLeaf
		for i := 0; i < n.N; i++ {
			kb := s.Codec.Encode(n.Keys[i])
			putUvarint(uint64(len(kb)))
			buf = append(buf, kb...)
			putUvarint(uint64(len(n.Values[i])))
			buf = append(buf, n.Values[i]...)
		}
	} else {
		page.Type = pager.PageTypeInternal
		for i := 0; i < n.N; i++ {
			kb := s.Codec.Encode(n.Keys[i])
			putUvarint(uint64(len(kb)))
			buf = append(buf, kb...)
		}
		for _, child := range n.Children {
			var cb [8]byte
			binary.LittleEndian.PutUint64(cb[:], child)
			buf = append(buf, cb[:]...)
		}
	}
	if len(buf) > len(page.Usable()) {
		return &ashdberrors.Corruption{Detail: "btree: node overflowed a page, splitting failed to bound it"}
	}
	copy(page.Usable(), buf)
	page.NumCells = uint16(n.N)
	page.RightSibling = n.Next
	return nil
}

func (s *PageStore) decode(page *pager.Page) (*Node, error) {
	n := &Node{PageID: page.ID, Leaf: page.Type == pager.PageTypeLeaf, Next: page.RightSibling}
	buf := page.Usable()

	count, sz := binary.Uvarint(buf)
	if sz <= 0 {
		return nil, &ashdberrors.Corruption{Detail: "btree: truncated node header"}
	}
	buf = buf[sz:]
	n.N = int(count)

	if n.Leaf {
		n.Keys = make([]types.Comparable, 0, count)
		n.Values = make([][]byte, 0, count)
		for i := uint64(0); i < count; i++ {
			kb, rest, err := readBlob(buf)
			if err != nil {
				return nil, err
			}
			buf = rest
			key, err := s.Codec.Decode(kb)
			if err != nil {
				return nil, err
			}
			vb, rest2, err := readBlob(buf)
			if err != nil {
				return nil, err
			}
			buf = rest2
			n.Keys = append(n.Keys, key)
			n.Values = append(n.Values, vb)
		}
	} else {
		n.Keys = make([]types.Comparable, 0, count)
		for i := uint64(0); i < count; i++ {
			kb, rest, err := readBlob(buf)
			if err != nil {
				return nil, err
			}
			buf = rest
			key, err := s.Codec.Decode(kb)
			if err != nil {
				return nil, err
			}
			n.Keys = append(n.Keys, key)
		}
		n.Children = make([]uint64, 0, count+1)
		for i := uint64(0); i < count+1; i++ {
			if len(buf) < 8 {
				return nil, &ashdberrors.Corruption{Detail: "btree: truncated child pointer"}
			}
			n.Children = append(n.Children, binary.LittleEndian.Uint64(buf[:8]))
			buf = buf[8:]
		}
	}
	return n, nil
}

func readBlob(buf []byte) ([]byte, []byte, error) {
	l, sz := binary.Uvarint(buf)
	if sz <= 0 || uint64(len(buf[sz:])) < l {
		return nil, nil, &ashdberrors.Corruption{Detail: "btree: truncated cell"}
	}
	buf = buf[sz:]
	out := make([]byte, l)
	copy(out, buf[:l])
	return out, buf[l:], nil
}
