package protocol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "topicsync-envelope.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "args"],
  "properties": {
    "type": {
      "enum": ["action", "update", "reject", "subscribe", "unsubscribe", "init",
               "hello", "request", "response", "register_service"]
    },
    "args": {"type": "object"}
  },
  "allOf": [
    {"if": {"properties": {"type": {"const": "action"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/action"}}}},
    {"if": {"properties": {"type": {"const": "update"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/update"}}}},
    {"if": {"properties": {"type": {"const": "reject"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/reject"}}}},
    {"if": {"properties": {"type": {"enum": ["subscribe", "unsubscribe"]}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/topic"}}}},
    {"if": {"properties": {"type": {"const": "init"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/init"}}}},
    {"if": {"properties": {"type": {"const": "hello"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/hello"}}}},
    {"if": {"properties": {"type": {"const": "request"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/request"}}}},
    {"if": {"properties": {"type": {"const": "response"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/response"}}}},
    {"if": {"properties": {"type": {"const": "register_service"}}},
     "then": {"properties": {"args": {"$ref": "#/$defs/service"}}}}
  ],
  "$defs": {
    "change": {
      "type": "object",
      "required": ["topic_name", "type", "id"],
      "properties": {
        "topic_name": {"type": "string"},
        "topic_type": {"type": "string"},
        "type": {"type": "string"},
        "id": {"type": "string"}
      }
    },
    "action": {
      "type": "object",
      "required": ["commands", "action_id"],
      "properties": {
        "commands": {"type": "array", "items": {"$ref": "#/$defs/change"}},
        "action_id": {"type": "string"}
      }
    },
    "update": {
      "type": "object",
      "required": ["changes"],
      "properties": {
        "changes": {"type": "array", "items": {"$ref": "#/$defs/change"}},
        "action_id": {"type": ["string", "null"]}
      }
    },
    "reject": {
      "type": "object",
      "properties": {"reason": {"type": "string"}}
    },
    "topic": {
      "type": "object",
      "required": ["topic_name"],
      "properties": {
        "topic_name": {"type": "string", "minLength": 1},
        "type": {"type": "string"}
      }
    },
    "init": {
      "type": "object",
      "required": ["topic_name", "value"],
      "properties": {"topic_name": {"type": "string", "minLength": 1}}
    },
    "hello": {
      "type": "object",
      "required": ["id"],
      "properties": {"id": {"type": ["string", "integer"]}}
    },
    "request": {
      "type": "object",
      "required": ["service_name", "request_id"],
      "properties": {
        "service_name": {"type": "string", "minLength": 1},
        "request_id": {"type": "string", "minLength": 1}
      }
    },
    "response": {
      "type": "object",
      "required": ["request_id"],
      "properties": {"request_id": {"type": "string", "minLength": 1}}
    },
    "service": {
      "type": "object",
      "required": ["service_name"],
      "properties": {"service_name": {"type": "string", "minLength": 1}}
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// envelopeValidator returns the compiled envelope schema. It is compiled on
// first use and shared.
func envelopeValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
		if err != nil {
			schemaErr = fmt.Errorf("protocol: parse envelope schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("protocol: add envelope schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(envelopeSchemaURL)
	})
	return compiledSchema, schemaErr
}

// Validate checks a decoded JSON document against the envelope schema.
func Validate(doc any) error {
	sch, err := envelopeValidator()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
