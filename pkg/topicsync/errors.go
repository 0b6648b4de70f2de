package topicsync

import (
	"errors"
	"fmt"
)

// ErrInvalidChange is the root of every error caused by a change that cannot
// be applied to the current value: a validator veto or a failed precondition.
// Use errors.Is(err, ErrInvalidChange) to match the whole family.
var ErrInvalidChange = errors.New("topicsync: invalid change")

var (
	ErrDuplicateItem    = fmt.Errorf("%w: item already in set", ErrInvalidChange)
	ErrItemNotFound     = fmt.Errorf("%w: item not in set", ErrInvalidChange)
	ErrDuplicateKey     = fmt.Errorf("%w: key already in dict", ErrInvalidChange)
	ErrKeyNotFound      = fmt.Errorf("%w: key not in dict", ErrInvalidChange)
	ErrVersionMismatch  = fmt.Errorf("%w: topic version mismatch", ErrInvalidChange)
	ErrInvalidPosition  = fmt.Errorf("%w: invalid position", ErrInvalidChange)
	ErrDeletionMismatch = fmt.Errorf("%w: deletion does not match text", ErrInvalidChange)
	ErrRejected         = fmt.Errorf("%w: rejected by validator", ErrInvalidChange)
)

var (
	// ErrNotInvertible is returned by Inverse on changes with no opposite,
	// such as event emits.
	ErrNotInvertible = errors.New("topicsync: change is not invertible")

	// ErrNotApplied is returned by Inverse when the change has not captured
	// the prior state it needs yet.
	ErrNotApplied = errors.New("topicsync: change has not been applied")

	// ErrUnknownChangeType is returned when a wire tag is not in the topic's
	// tag table, or the change's topic type disagrees with the topic.
	ErrUnknownChangeType = errors.New("topicsync: unknown change type")

	// ErrMalformedChange is returned when a change dict lacks a field or a
	// field has the wrong type.
	ErrMalformedChange = errors.New("topicsync: malformed change")

	ErrUnknownKind    = errors.New("topicsync: unknown topic kind")
	ErrUnknownTopic   = errors.New("topicsync: topic not subscribed")
	ErrTopicExists    = errors.New("topicsync: topic already subscribed")
	ErrNotPretended   = errors.New("topicsync: topic is not pretended")
	ErrRecording      = errors.New("topicsync: not allowed while recording")
	ErrWrongTopicType = errors.New("topicsync: topic has a different type")
)

// ChangeError attaches the topic and change tag to an error raised while
// decoding, validating, applying or inverting a change.
type ChangeError struct {
	Topic  string
	Tag    string
	Err    error
	Detail string
}

func (e *ChangeError) Error() string {
	msg := fmt.Sprintf("%v (topic %q", e.Err, e.Topic)
	if e.Tag != "" {
		msg += ", change " + e.Tag
	}
	msg += ")"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the underlying sentinel for errors.Is/As support.
func (e *ChangeError) Unwrap() error {
	return e.Err
}

func changeErr(topic, tag string, err error, format string, args ...any) *ChangeError {
	return &ChangeError{Topic: topic, Tag: tag, Err: err, Detail: fmt.Sprintf(format, args...)}
}
