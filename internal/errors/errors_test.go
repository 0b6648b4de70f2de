package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	stderrors "errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/topicsync/pkg/client"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"topic error", "E001", "Unknown topic", CategoryTopic},
		{"change error", "E010", "Invalid change", CategoryChange},
		{"connection error", "E020", "Connection failed", CategoryConnection},
		{"unknown error code", "E999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.Equal(t, tt.wantCat, err.Category)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "unknown command %q", "frob")
	assert.Equal(t, `unknown command "frob"`, err.Message)
	assert.Equal(t, CategoryCLI, err.Category)
	assert.Equal(t, `unknown command "frob"`, err.Error())
}

func TestErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("dial: %w", context.DeadlineExceeded)
	err := New("E020").Wrap(cause)

	assert.Equal(t, "E020: Connection failed: dial: context deadline exceeded", err.Error())
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.Same(t, err, FromError(err, "E050"))
	assert.Nil(t, FromError(nil, "E050"))
	assert.Equal(t, "E050", FromError(stderrors.New("x"), "E050").Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("get: %w", topicsync.ErrUnknownTopic), "E001"},
		{topicsync.ErrTopicExists, "E002"},
		{topicsync.ErrWrongTopicType, "E003"},
		{topicsync.ErrUnknownKind, "E004"},
		{topicsync.ErrDuplicateItem, "E010"},
		{topicsync.ErrVersionMismatch, "E010"},
		{topicsync.ErrRejected, "E011"},
		{topicsync.ErrMalformedChange, "E012"},
		{client.ErrClosed, "E021"},
		{client.ErrNoService, "E023"},
		{protocol.ErrMessageTooLarge, "E031"},
		{protocol.ErrInvalidMessage, "E030"},
	}
	for _, tt := range tests {
		t.Run(tt.code+" "+tt.err.Error(), func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	plain := Classify(stderrors.New("boom"))
	assert.Empty(t, plain.Code)
	assert.Equal(t, "boom", plain.Message)
	assert.Nil(t, Classify(nil))
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E051").WithDetail("invalid character 'h' looking for beginning of value")
	out := err.Format()
	assert.Contains(t, out, "ERROR E051: Invalid JSON value")
	assert.Contains(t, out, "invalid character")
	assert.Contains(t, out, "Example:")
	assert.Contains(t, out, `set title "hello"`)
	assert.NotContains(t, out, "\033[")

	withCause := New("E020").Wrap(stderrors.New("connection refused")).Format()
	assert.Contains(t, withCause, "  Unable to establish a WebSocket connection to the server.\n")
	assert.Contains(t, withCause, "  Cause: connection refused\n")
	assert.Contains(t, withCause, "Hint: ")

	long := stderrors.New("dial tcp 127.0.0.1:8765: connect: connection refused by the remote host after several attempts")
	causeOnly := Newf(CategoryConnection, "dial failed").Wrap(long).Format()
	assert.Contains(t, causeOnly, "  Cause: "+long.Error()+"\n")
}

func TestFormatJSON(t *testing.T) {
	err := New("E002").Wrap(stderrors.New("doc"))
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(err.FormatJSON()), &got))
	assert.Equal(t, "E002", got["code"])
	assert.Equal(t, "topic", got["category"])
	assert.Equal(t, "doc", got["cause"])
}

func TestPrintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	PrintError(&buf, topicsync.ErrUnknownTopic)
	assert.Contains(t, buf.String(), "E001: Unknown topic")

	buf.Reset()
	PrintError(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	assert.True(t, len(codes) > 10)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		require.True(t, ok)
		assert.NotEmpty(t, tmpl.Message, code)
		assert.NotEmpty(t, tmpl.Category, code)
		assert.True(t, strings.HasPrefix(code, "E"), code)
	}

	Register("E900", ErrorTemplate{Category: CategoryCLI, Message: "Custom"})
	assert.Equal(t, "Custom", New("E900").Message)
}
