package topicsync

import (
	"fmt"
	"slices"
)

// Kind is the wire name of a topic type, sent as "topic_type".
type Kind string

const (
	KindGeneric Kind = "generic"
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindSet     Kind = "set"
	KindDict    Kind = "dict"
	KindList    Kind = "list"
	KindEvent   Kind = "event"
)

// Wire tags of the change variants.
const (
	TagSet         = "set"
	TagAdd         = "add"
	TagAppend      = "append"
	TagRemove      = "remove"
	TagInsert      = "insert"
	TagDelete      = "delete"
	TagPop         = "pop"
	TagChangeValue = "change_value"
	TagEmit        = "emit"
)

var kinds = []Kind{KindGeneric, KindString, KindInt, KindFloat, KindSet, KindDict, KindList, KindEvent}

// Kinds returns every known topic kind.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// ParseKind validates a wire topic type.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(kinds, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) String() string {
	return string(k)
}

func newTopic(m *StateManager, name string, kind Kind) (Topic, error) {
	switch kind {
	case KindGeneric:
		return newGenericTopic(m, name), nil
	case KindString:
		return newStringTopic(m, name), nil
	case KindInt:
		return newIntTopic(m, name), nil
	case KindFloat:
		return newFloatTopic(m, name), nil
	case KindSet:
		return newSetTopic(m, name), nil
	case KindDict:
		return newDictTopic(m, name), nil
	case KindList:
		return newListTopic(m, name), nil
	case KindEvent:
		return newEventTopic(m, name), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
