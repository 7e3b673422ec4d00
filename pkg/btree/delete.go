package btree

import "github.com/ashlang/ashdb/pkg/types"

// Delete removes key, reporting whether it was present. Ported from the
// teacher's Node.remove/fill/borrowFromPrev/borrowFromNext/merge, walking
// pages through the Store instead of following in-memory pointers: each
// recursive step loads a child, rebalances it before descending if it is
// under-full (preventive fill, same as the teacher), then saves every
// page it touched.
func (tr *Tree) Delete(key types.Comparable) (bool, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	root, err := tr.store.Load(tr.rootID)
	if err != nil {
		return false, err
	}
	removed, err := tr.remove(root, key)
	if err != nil {
		return false, err
	}
	// collapse a root internal node left with a single child
	if !root.Leaf && root.N == 0 && len(root.Children) == 1 {
		newRootID := root.Children[0]
		if err := tr.store.Free(root.PageID); err != nil {
			return removed, err
		}
		tr.rootID = newRootID
	}
	return removed, nil
}

func (tr *Tree) remove(n *Node, key types.Comparable) (bool, error) {
	idx := n.findIndex(key)

	if n.Leaf {
		if idx < n.N && n.Keys[idx].Compare(key) == 0 {
			n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
			n.Values = append(n.Values[:idx], n.Values[idx+1:]...)
			n.N--
			return true, tr.store.Save(n)
		}
		return false, nil
	}

	childIdx := idx
	if idx < n.N && n.Keys[idx].Compare(key) == 0 {
		childIdx = idx + 1
	}

	child, err := tr.store.Load(n.Children[childIdx])
	if err != nil {
		return false, err
	}
	if child.N < tr.t {
		if err := tr.fill(n, childIdx); err != nil {
			return false, err
		}
		// rebalancing may have shifted which child now holds key
		idx = n.findIndex(key)
		childIdx = idx
		if idx < n.N && n.Keys[idx].Compare(key) == 0 {
			childIdx = idx + 1
		}
		if childIdx > n.N {
			childIdx = n.N
		}
		child, err = tr.store.Load(n.Children[childIdx])
		if err != nil {
			return false, err
		}
	}

	removed, err := tr.remove(child, key)
	if err != nil {
		return false, err
	}
	if removed {
		if err := tr.fixSeparators(n); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// fixSeparators re-derives every internal separator from its right
// child's first leaf key, since a leaf-level delete/borrow/merge can
// change a subtree's minimum without the parent's separator noticing.
func (tr *Tree) fixSeparators(n *Node) error {
	if n.Leaf {
		return nil
	}
	for i := 0; i < n.N; i++ {
		curr, err := tr.store.Load(n.Children[i+1])
		if err != nil {
			return err
		}
		for !curr.Leaf {
			curr, err = tr.store.Load(curr.Children[0])
			if err != nil {
				return err
			}
		}
		if curr.N > 0 {
			n.Keys[i] = curr.Keys[0]
		}
	}
	return tr.store.Save(n)
}

func (tr *Tree) fill(n *Node, i int) error {
	prevOK := i != 0
	nextOK := i != n.N
	if prevOK {
		prev, err := tr.store.Load(n.Children[i-1])
		if err != nil {
			return err
		}
		if prev.N >= tr.t {
			return tr.borrowFromPrev(n, i, prev)
		}
	}
	if nextOK {
		next, err := tr.store.Load(n.Children[i+1])
		if err != nil {
			return err
		}
		if next.N >= tr.t {
			return tr.borrowFromNext(n, i, next)
		}
	}
	if nextOK {
		return tr.merge(n, i)
	}
	return tr.merge(n, i-1)
}

func (tr *Tree) borrowFromPrev(n *Node, i int, sibling *Node) error {
	child, err := tr.store.Load(n.Children[i])
	if err != nil {
		return err
	}
	if child.Leaf {
		child.Keys = insertComparableAt(child.Keys, 0, sibling.Keys[sibling.N-1])
		child.Values = insertBytesAt(child.Values, 0, sibling.Values[sibling.N-1])
		child.N++

		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Values = sibling.Values[:sibling.N-1]
		sibling.N--

		n.Keys[i-1] = child.Keys[0]
	} else {
		child.Keys = insertComparableAt(child.Keys, 0, n.Keys[i-1])
		child.Children = insertUint64At(child.Children, 0, sibling.Children[sibling.N])
		child.N++

		n.Keys[i-1] = sibling.Keys[sibling.N-1]
		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Children = sibling.Children[:sibling.N]
		sibling.N--
	}
	if err := tr.store.Save(child); err != nil {
		return err
	}
	if err := tr.store.Save(sibling); err != nil {
		return err
	}
	return tr.store.Save(n)
}

func (tr *Tree) borrowFromNext(n *Node, i int, sibling *Node) error {
	child, err := tr.store.Load(n.Children[i])
	if err != nil {
		return err
	}
	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys[0])
		child.Values = append(child.Values, sibling.Values[0])
		child.N++

		sibling.Keys = append([]types.Comparable{}, sibling.Keys[1:]...)
		sibling.Values = append([][]byte{}, sibling.Values[1:]...)
		sibling.N--

		n.Keys[i] = sibling.Keys[0]
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Children = append(child.Children, sibling.Children[0])
		child.N++

		n.Keys[i] = sibling.Keys[0]
		sibling.Keys = append([]types.Comparable{}, sibling.Keys[1:]...)
		sibling.Children = append([]uint64{}, sibling.Children[1:]...)
		sibling.N--
	}
	if err := tr.store.Save(child); err != nil {
		return err
	}
	if err := tr.store.Save(sibling); err != nil {
		return err
	}
	return tr.store.Save(n)
}

func (tr *Tree) merge(n *Node, i int) error {
	child, err := tr.store.Load(n.Children[i])
	if err != nil {
		return err
	}
	sibling, err := tr.store.Load(n.Children[i+1])
	if err != nil {
		return err
	}

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Values = append(child.Values, sibling.Values...)
		child.Next = sibling.Next
		child.N = len(child.Keys)
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Children = append(child.Children, sibling.Children...)
		child.N = len(child.Keys)
	}

	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
	n.N--

	if err := tr.store.Free(sibling.PageID); err != nil {
		return err
	}
	if err := tr.store.Save(child); err != nil {
		return err
	}
	return tr.store.Save(n)
}
