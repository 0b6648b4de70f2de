package errors

import (
	"context"
	stderrors "errors"

	"github.com/vango-dev/topicsync/pkg/client"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

// classification maps sentinel errors to codes. Order matters: the first
// match wins, so specific errors come before their roots.
var classification = []struct {
	target error
	code   string
}{
	{topicsync.ErrUnknownTopic, "E001"},
	{topicsync.ErrTopicExists, "E002"},
	{topicsync.ErrWrongTopicType, "E003"},
	{topicsync.ErrUnknownChangeType, "E003"},
	{topicsync.ErrUnknownKind, "E004"},
	{topicsync.ErrRejected, "E011"},
	{topicsync.ErrMalformedChange, "E012"},
	{topicsync.ErrNotInvertible, "E013"},
	{topicsync.ErrNotApplied, "E013"},
	{topicsync.ErrInvalidChange, "E010"},
	{client.ErrClosed, "E021"},
	{context.DeadlineExceeded, "E022"},
	{client.ErrNoService, "E023"},
	{protocol.ErrMessageTooLarge, "E031"},
	{protocol.ErrInvalidMessage, "E030"},
	{protocol.ErrUnknownMessage, "E030"},
	{protocol.ErrMaxDepthExceeded, "E030"},
}

// Classify returns err as a TopicsyncError. Errors that already are one are
// returned unchanged; known sentinels get their code; anything else gets an
// uncoded error carrying its message.
func Classify(err error) *TopicsyncError {
	if err == nil {
		return nil
	}
	var te *TopicsyncError
	if stderrors.As(err, &te) {
		return te
	}
	for _, c := range classification {
		if stderrors.Is(err, c.target) {
			return New(c.code).Wrap(err)
		}
	}
	return &TopicsyncError{Category: CategoryCLI, Message: err.Error()}
}
