package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type MessageType `json:"type"`
	Args any         `json:"args"`
}

type rawEnvelope struct {
	Type MessageType     `json:"type"`
	Args json.RawMessage `json:"args"`
}

// Codec encodes outbound envelopes and decodes inbound ones.
type Codec struct {
	limits Limits
}

// NewCodec creates a codec enforcing limits. Zero fields take the defaults.
func NewCodec(limits Limits) *Codec {
	def := DefaultLimits()
	if limits.MessageSize <= 0 {
		limits.MessageSize = def.MessageSize
	}
	if limits.ValueDepth <= 0 {
		limits.ValueDepth = def.ValueDepth
	}
	return &Codec{limits: limits}
}

var defaultCodec = NewCodec(DefaultLimits())

// Encode returns the envelope for msg.
func Encode(msg Message) ([]byte, error) {
	buf, err := json.Marshal(envelope{Type: msg.Type(), Args: msg})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Type(), err)
	}
	return buf, nil
}

// Decode decodes an envelope with the default limits.
func Decode(data []byte) (Message, error) {
	return defaultCodec.Decode(data)
}

// Decode checks data against the limits and the envelope schema and returns
// its args as one of the message types of this package.
func (c *Codec) Decode(data []byte) (Message, error) {
	if len(data) > c.limits.MessageSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(data), c.limits.MessageSize)
	}

	var doc any
	if err := unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := newDepthContext(c.limits.ValueDepth).check(doc); err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	var env rawEnvelope
	if err := unmarshal(data, &env); err != nil {
		return nil, err
	}
	msg, ok := newMessage(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err := unmarshal(env.Args, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after envelope", ErrInvalidMessage)
	}
	return nil
}
