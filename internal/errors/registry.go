package errors

import (
	"slices"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	Example    string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Topic Errors (E001-E009)
	// ============================================

	"E001": {
		Category:   CategoryTopic,
		Message:    "Unknown topic",
		Detail:     "The topic is not subscribed on this client.",
		Suggestion: "Subscribe to the topic first, e.g. 'sub <name> <kind>'",
	},
	"E002": {
		Category: CategoryTopic,
		Message:  "Topic already subscribed",
		Detail:   "A topic can only be subscribed once per client.",
	},
	"E003": {
		Category:   CategoryTopic,
		Message:    "Wrong topic kind",
		Detail:     "The operation does not exist for the kind of this topic.",
		Suggestion: "Use 'topics' to list the subscribed topics and their kinds",
	},
	"E004": {
		Category:   CategoryTopic,
		Message:    "Unknown topic kind",
		Suggestion: "Use one of: generic, string, int, float, set, dict, list, event",
	},

	// ============================================
	// Change Errors (E010-E019)
	// ============================================

	"E010": {
		Category: CategoryChange,
		Message:  "Invalid change",
		Detail:   "The change does not apply to the current value of the topic. Nothing was sent to the server.",
	},
	"E011": {
		Category: CategoryChange,
		Message:  "Change rejected by validator",
		Detail:   "A validator registered on the topic refused the change.",
	},
	"E012": {
		Category: CategoryChange,
		Message:  "Malformed change",
		Detail:   "A change dict is missing fields or has fields of the wrong type.",
	},
	"E013": {
		Category: CategoryChange,
		Message:  "Change cannot be undone",
		Detail:   "A rollback hit a change that has no inverse. The local state may differ from the server until the next update.",
	},

	// ============================================
	// Connection Errors (E020-E029)
	// ============================================

	"E020": {
		Category:   CategoryConnection,
		Message:    "Connection failed",
		Detail:     "Unable to establish a WebSocket connection to the server.",
		Suggestion: "Check that the server is running and that --url points at its WebSocket endpoint",
	},
	"E021": {
		Category: CategoryConnection,
		Message:  "Connection closed",
		Detail:   "The connection to the server is closed.",
	},
	"E022": {
		Category:   CategoryConnection,
		Message:    "No handshake",
		Detail:     "The server did not send its hello message in time.",
		Suggestion: "Check that the URL points at a topicsync server",
	},
	"E023": {
		Category: CategoryConnection,
		Message:  "Service not found",
		Detail:   "No service with this name is registered.",
	},

	// ============================================
	// Protocol Errors (E030-E039)
	// ============================================

	"E030": {
		Category: CategoryProtocol,
		Message:  "Invalid message",
		Detail:   "A message does not match the topicsync envelope schema.",
	},
	"E031": {
		Category: CategoryProtocol,
		Message:  "Message too large",
	},

	// ============================================
	// Config Errors (E040-E049)
	// ============================================

	"E040": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Create topicsync.json or pass every setting as a flag",
	},
	"E041": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Suggestion: "Check that topicsync.json is valid JSON",
	},
	"E042": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
	},

	// ============================================
	// CLI Errors (E050-E059)
	// ============================================

	"E050": {
		Category:   CategoryCLI,
		Message:    "Invalid arguments",
		Suggestion: "Run the command with --help for usage",
	},
	"E051": {
		Category: CategoryCLI,
		Message:  "Invalid JSON value",
		Detail:   "Values are given as JSON, so strings need quotes.",
		Example:  `set title "hello"`,
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
