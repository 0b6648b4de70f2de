// Package textot implements the positional text edits used by string topics.
//
// Positions count Unicode code points, not bytes. Every edit is checked
// against the text it is applied to: an insert must land inside the text and
// a delete must name exactly the characters it removes, which makes every
// edit exactly invertible.
package textot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidPosition  = errors.New("textot: invalid position")
	ErrDeletionMismatch = errors.New("textot: deletion does not match text")
)

// Op is a single text edit.
type Op interface {
	Apply(s string) (string, error)
	Inverse() Op
}

// InsertOp inserts Text at Pos.
type InsertOp struct {
	Pos  int
	Text string
}

func (op InsertOp) Apply(s string) (string, error) {
	return Insert(s, op.Pos, op.Text)
}

func (op InsertOp) Inverse() Op {
	return DeleteOp(op)
}

// DeleteOp removes Text, which must start at Pos.
type DeleteOp struct {
	Pos  int
	Text string
}

func (op DeleteOp) Apply(s string) (string, error) {
	return Delete(s, op.Pos, op.Text)
}

func (op DeleteOp) Inverse() Op {
	return InsertOp(op)
}

// Len returns the length of s in code points.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// ValidPosition reports whether pos is in [0, Len(s)].
func ValidPosition(s string, pos int) bool {
	return pos >= 0 && pos <= Len(s)
}

// byteOffset converts a code point position into a byte offset.
// pos must be valid for s.
func byteOffset(s string, pos int) int {
	if pos == 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == pos {
			return i
		}
		n++
	}
	return len(s)
}

// Insert returns s with text inserted at pos.
func Insert(s string, pos int, text string) (string, error) {
	if !ValidPosition(s, pos) {
		return "", fmt.Errorf("%w: insert at %d, must be in [0, %d]", ErrInvalidPosition, pos, Len(s))
	}
	at := byteOffset(s, pos)
	return s[:at] + text + s[at:], nil
}

// Delete returns s with text removed at pos. The characters at pos must be
// exactly text.
func Delete(s string, pos int, text string) (string, error) {
	if !ValidPosition(s, pos) {
		return "", fmt.Errorf("%w: delete at %d, must be in [0, %d]", ErrInvalidPosition, pos, Len(s))
	}
	at := byteOffset(s, pos)
	if !strings.HasPrefix(s[at:], text) {
		return "", fmt.Errorf("%w: %q does not appear at position %d of %q", ErrDeletionMismatch, text, pos, s)
	}
	return s[:at] + s[at+len(text):], nil
}
