package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the kind of an envelope.
type MessageType string

const (
	TypeAction          MessageType = "action"           // Client → Server recorded action
	TypeUpdate          MessageType = "update"           // Server → Client confirmed changes
	TypeReject          MessageType = "reject"           // Server → Client action refused
	TypeSubscribe       MessageType = "subscribe"        // Client → Server
	TypeUnsubscribe     MessageType = "unsubscribe"      // Client → Server
	TypeInit            MessageType = "init"             // Server → Client topic snapshot
	TypeHello           MessageType = "hello"            // Server → Client handshake
	TypeRequest         MessageType = "request"          // Either direction
	TypeResponse        MessageType = "response"         // Either direction
	TypeRegisterService MessageType = "register_service" // Client → Server
)

// Inbound reports whether a client accepts messages of this type.
func (t MessageType) Inbound() bool {
	switch t {
	case TypeUpdate, TypeReject, TypeInit, TypeHello, TypeRequest, TypeResponse:
		return true
	default:
		return false
	}
}

// Protocol errors.
var (
	ErrUnknownMessage   = errors.New("protocol: unknown message type")
	ErrInvalidMessage   = errors.New("protocol: invalid message")
	ErrMessageTooLarge  = errors.New("protocol: message too large")
	ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")
)

// Message is the args of one envelope.
type Message interface {
	Type() MessageType
}

// ChangeDict is the wire form of a change.
type ChangeDict = map[string]any

// Action carries the top-level changes of one recorded action.
type Action struct {
	Commands []ChangeDict `json:"commands"`
	ActionID string       `json:"action_id"`
}

// Update carries changes the server has applied. ActionID names the client
// action they came from, if any.
type Update struct {
	Changes  []ChangeDict `json:"changes"`
	ActionID string       `json:"action_id"`
}

// Reject tells the client that the oldest pending action was refused.
type Reject struct {
	Reason string `json:"reason"`
}

type Subscribe struct {
	TopicName string `json:"topic_name"`
	TopicType string `json:"type,omitempty"`
}

type Unsubscribe struct {
	TopicName string `json:"topic_name"`
}

// Init carries the current value of a topic after subscribe.
type Init struct {
	TopicName string `json:"topic_name"`
	Value     any    `json:"value"`
}

// Hello is the handshake that assigns the client id. Servers send the id as
// a string or as an integer.
type Hello struct {
	ID any `json:"id"`
}

// ClientID returns the id in string form.
func (h *Hello) ClientID() string {
	switch id := h.ID.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// Request calls a service. RequestID correlates the Response.
type Request struct {
	ServiceName string `json:"service_name"`
	Args        any    `json:"args"`
	RequestID   string `json:"request_id"`
}

type Response struct {
	RequestID string `json:"request_id"`
	Response  any    `json:"response"`
}

type RegisterService struct {
	ServiceName string `json:"service_name"`
}

func (*Action) Type() MessageType          { return TypeAction }
func (*Update) Type() MessageType          { return TypeUpdate }
func (*Reject) Type() MessageType          { return TypeReject }
func (*Subscribe) Type() MessageType       { return TypeSubscribe }
func (*Unsubscribe) Type() MessageType     { return TypeUnsubscribe }
func (*Init) Type() MessageType            { return TypeInit }
func (*Hello) Type() MessageType           { return TypeHello }
func (*Request) Type() MessageType         { return TypeRequest }
func (*Response) Type() MessageType        { return TypeResponse }
func (*RegisterService) Type() MessageType { return TypeRegisterService }

// newMessage returns an empty message of type t.
func newMessage(t MessageType) (Message, bool) {
	switch t {
	case TypeAction:
		return &Action{}, true
	case TypeUpdate:
		return &Update{}, true
	case TypeReject:
		return &Reject{}, true
	case TypeSubscribe:
		return &Subscribe{}, true
	case TypeUnsubscribe:
		return &Unsubscribe{}, true
	case TypeInit:
		return &Init{}, true
	case TypeHello:
		return &Hello{}, true
	case TypeRequest:
		return &Request{}, true
	case TypeResponse:
		return &Response{}, true
	case TypeRegisterService:
		return &RegisterService{}, true
	default:
		return nil, false
	}
}
