// Package protocol implements the JSON wire protocol between a topicsync
// client and its server.
//
// Every message is a text frame holding one envelope:
//
//	{"type": "<message type>", "args": {...}}
//
// # Message Types
//
// Client to server:
//
//   - action: a recorded action, {commands, action_id}
//   - subscribe / unsubscribe: {topic_name, type}
//   - request: a call to a server-side service, {service_name, args, request_id}
//   - register_service: offer a service to the server, {service_name}
//   - response: the answer to a server request, {request_id, response}
//
// Server to client:
//
//   - hello: the handshake assigning the client id, {id}
//   - update: confirmed changes, {changes, action_id}
//   - reject: the server refused the oldest pending action, {reason}
//   - init: a topic snapshot after subscribe, {topic_name, value}
//   - request / response: as above, in the other direction
//
// A change travels as a change dict: a JSON object with topic_name,
// topic_type, type and id, plus the fields of the change kind.
//
// # Validation
//
// Inbound envelopes are checked against a JSON schema before their args are
// decoded, and their nesting depth is limited. Numbers decode as
// json.Number so that integer topics keep full precision.
package protocol
