// Package errors defines ashdb's error taxonomy. Every error surfaced
// across a package boundary is one of these kinds, wrapped with
// github.com/cockroachdb/errors so callers keep a stack trace without
// each layer re-implementing one.
package errors

import (
	"fmt"

	cockroach "github.com/cockroachdb/errors"
)

// Kind classifies an error per the taxonomy: callers switch on Kind,
// not on concrete error types, so a new error struct never breaks an
// existing caller's handling.
type Kind uint8

const (
	KindInternal Kind = iota
	KindIO
	KindCorruption
	KindParse
	KindSchema
	KindBusy
	KindCrypto
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindParse:
		return "parse"
	case KindSchema:
		return "schema"
	case KindBusy:
		return "busy"
	case KindCrypto:
		return "crypto"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error is the concrete type every ashdb error surfaces as.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: cockroach.Newf(format, args...).Error()}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cockroach.Wrap(cause, "")}
}

// Is reports whether err or an error it wraps has the given Kind: an
// *Error of that Kind, or one of the typed errors below whose Kind
// method returns it.
func Is(err error, kind Kind) bool {
	var e *Error
	if cockroach.As(err, &e) {
		return e.Kind == kind
	}
	var k interface{ Kind() Kind }
	return cockroach.As(err, &k) && k.Kind() == kind
}

// Schema-level errors, grounded on the teacher's pkg/errors typed-struct
// pattern (TableAlreadyExistsError, TableNotFoundError, ...), generalized
// into the taxonomy above while keeping a distinct Go type per case so
// callers that need the extra fields (Name, Total, ...) can still type-
// assert past the taxonomy.

type TableAlreadyExists struct{ Name string }

func (e *TableAlreadyExists) Error() string {
	return fmt.Sprintf("schema: table %q already exists", e.Name)
}
func (e *TableAlreadyExists) Kind() Kind { return KindSchema }

type TableNotFound struct{ Name string }

func (e *TableNotFound) Error() string { return fmt.Sprintf("schema: table %q not found", e.Name) }
func (e *TableNotFound) Kind() Kind    { return KindSchema }

type IndexAlreadyExists struct{ Name string }

func (e *IndexAlreadyExists) Error() string {
	return fmt.Sprintf("schema: index %q already exists", e.Name)
}
func (e *IndexAlreadyExists) Kind() Kind { return KindSchema }

type IndexNotFound struct{ Name string }

func (e *IndexNotFound) Error() string { return fmt.Sprintf("schema: index %q not found", e.Name) }
func (e *IndexNotFound) Kind() Kind    { return KindSchema }

type MultiplePrimaryKeys struct{ Table string; Total int }

func (e *MultiplePrimaryKeys) Error() string {
	return fmt.Sprintf("schema: table %q declares %d primary keys, only one is allowed", e.Table, e.Total)
}
func (e *MultiplePrimaryKeys) Kind() Kind { return KindSchema }

type PrimaryKeyNotDefined struct{ Table string }

func (e *PrimaryKeyNotDefined) Error() string {
	return fmt.Sprintf("schema: table %q has no primary key and no implicit rowid", e.Table)
}
func (e *PrimaryKeyNotDefined) Kind() Kind { return KindSchema }

type DuplicateKey struct{ Key string }

func (e *DuplicateKey) Error() string {
	return fmt.Sprintf("schema: duplicate key %q violates a unique constraint", e.Key)
}
func (e *DuplicateKey) Kind() Kind { return KindSchema }

type ColumnNotFound struct{ Table, Column string }

func (e *ColumnNotFound) Error() string {
	return fmt.Sprintf("schema: column %q not found in table %q", e.Column, e.Table)
}
func (e *ColumnNotFound) Kind() Kind { return KindSchema }

type TypeMismatch struct {
	Column   string
	Expected string
	Got      string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("schema: column %q expects %s, got %s", e.Column, e.Expected, e.Got)
}
func (e *TypeMismatch) Kind() Kind { return KindSchema }

// Busy is returned when a writer cannot acquire the single-writer slot
// or a latch within the caller's budget; the async executor's retry loop
// watches specifically for this.
type Busy struct{ Reason string }

func (e *Busy) Error() string { return fmt.Sprintf("busy: %s", e.Reason) }
func (e *Busy) Kind() Kind    { return KindBusy }

type Corruption struct{ Detail string }

func (e *Corruption) Error() string { return fmt.Sprintf("corruption: %s", e.Detail) }
func (e *Corruption) Kind() Kind    { return KindCorruption }

type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
}
func (e *ParseError) Kind() Kind { return KindParse }

type Cancelled struct{}

func (e *Cancelled) Error() string { return "cancelled" }
func (e *Cancelled) Kind() Kind    { return KindCancelled }
