package types

// KeyCodec lets the B-tree (which only knows about the Comparable
// interface) serialize and parse the two concrete key types ashdb uses:
// RowKey for primary-key-ordered leaves, IndexKey for secondary index
// entries. Kept as a value the caller supplies (pkg/storage), rather
// than a method on Comparable, so pkg/btree never imports pkg/types'
// concrete key structs.
type KeyCodec struct {
	Encode func(Comparable) []byte
	Decode func([]byte) (Comparable, error)
}

func RowKeyCodec() KeyCodec {
	return KeyCodec{
		Encode: func(c Comparable) []byte {
			return encodeValue(c.(RowKey).V)
		},
		Decode: func(b []byte) (Comparable, error) {
			v, _, err := decodeValue(b)
			if err != nil {
				return nil, err
			}
			return RowKey{V: v}, nil
		},
	}
}

func IndexKeyCodec() KeyCodec {
	return KeyCodec{
		Encode: func(c Comparable) []byte {
			k := c.(IndexKey)
			return append(encodeValue(k.V), encodeValue(k.RowPK)...)
		},
		Decode: func(b []byte) (Comparable, error) {
			v, rest, err := decodeValue(b)
			if err != nil {
				return nil, err
			}
			pk, _, err := decodeValue(rest)
			if err != nil {
				return nil, err
			}
			return IndexKey{V: v, RowPK: pk}, nil
		},
	}
}

func encodeValue(v Value) []byte {
	return appendValue(nil, v)
}
