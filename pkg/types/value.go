// Package types defines the value domain shared by every layer of ashdb:
// the tagged Value union stored in table rows, and the Comparable key
// interface the B-tree orders on.
package types

import (
	"fmt"
	"math"
	"time"
)

// Kind tags a Value's underlying representation.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is the dynamically typed cell stored in a row. Exactly one of the
// fields is meaningful for a given Kind; the rest are zero.
type Value struct {
	Kind    Kind
	Integer int64
	Real    float64
	Text    string
	Blob    []byte
}

func Null() Value                { return Value{Kind: KindNull} }
func Integer(v int64) Value      { return Value{Kind: KindInteger, Integer: v} }
func Real(v float64) Value       { return Value{Kind: KindReal, Real: v} }
func Text(v string) Value        { return Value{Kind: KindText, Text: v} }
func Blob(v []byte) Value        { return Value{Kind: KindBlob, Blob: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	case KindReal:
		return fmt.Sprintf("%g", v.Real)
	case KindText:
		return v.Text
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.Blob)
	default:
		return "?"
	}
}

// Compare orders two Values of the same Kind. Null sorts before every
// other value, and comparing values of different non-null Kinds falls
// back to comparing their Kind tag so a Row can still be totally ordered
// even with mixed-type columns (the rare case; schemas normally pin a
// column's Kind).
func (v Value) Compare(other Value) int {
	if v.Kind == KindNull && other.Kind == KindNull {
		return 0
	}
	if v.Kind == KindNull {
		return -1
	}
	if other.Kind == KindNull {
		return 1
	}
	if v.Kind != other.Kind {
		if v.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch v.Kind {
	case KindInteger:
		return cmpInt64(v.Integer, other.Integer)
	case KindReal:
		return cmpFloat64(v.Real, other.Real)
	case KindText:
		return cmpString(v.Text, other.Text)
	case KindBlob:
		return cmpBytes(v.Blob, other.Blob)
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpFloat64(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt64(int64(len(a)), int64(len(b)))
}

// RowKey is the Comparable the B-tree orders leaf cells on: a table's
// primary key value, or a synthetic rowid when none is declared.
type RowKey struct{ V Value }

func (k RowKey) Compare(other Comparable) int {
	o := other.(RowKey)
	return k.V.Compare(o.V)
}

func (k RowKey) String() string { return k.V.String() }

// Comparable is satisfied by every ordered key type the B-tree indexes
// on: RowKey for primary-key/rowid ordering, IndexKey for secondary
// index entries.
type Comparable interface {
	Compare(other Comparable) int
}

// IndexKey orders a secondary index entry by its indexed column value,
// breaking ties on the referenced row's primary key so duplicate indexed
// values remain individually addressable.
type IndexKey struct {
	V     Value
	RowPK Value
}

func (k IndexKey) Compare(other Comparable) int {
	o := other.(IndexKey)
	if c := k.V.Compare(o.V); c != 0 {
		return c
	}
	return k.RowPK.Compare(o.RowPK)
}

func (k IndexKey) String() string { return fmt.Sprintf("%s/%s", k.V, k.RowPK) }

// TriBool is SQL's three-valued logic result: True, False, or Unknown
// (the result of any comparison touching NULL).
type TriBool uint8

const (
	Unknown TriBool = iota
	False
	True
)

func BoolToTri(b bool) TriBool {
	if b {
		return True
	}
	return False
}

func (t TriBool) And(o TriBool) TriBool {
	if t == False || o == False {
		return False
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return True
}

func (t TriBool) Or(o TriBool) TriBool {
	if t == True || o == True {
		return True
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return False
}

func (t TriBool) Not() TriBool {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

func (t TriBool) IsTrue() bool { return t == True }

// TimeToReal converts a time.Time into a REAL Value holding its unix
// nanoseconds, so ordering follows time.Time ordering up to float64
// precision (instants closer than the float64 spacing at that magnitude
// can compare equal).
func TimeToReal(t time.Time) Value {
	return Real(float64(t.UnixNano()))
}

func RealIsNaN(v Value) bool {
	return v.Kind == KindReal && math.IsNaN(v.Real)
}
