// Package protocol defines the MCP message shapes and method names carried
// over the JSON-RPC envelope in internal/jsonrpc2. It has no transport or
// session concerns of its own; it is the vocabulary the rest of the module
// speaks.
package protocol

// Version is the protocol revision this module implements.
const Version = "2025-06-18"

// Method names, grouped the way the capability table in the external
// interfaces groups them.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"

	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
	NotificationToolsListChanged = "notifications/tools/list_changed"

	MethodResourcesList              = "resources/list"
	MethodResourcesRead              = "resources/read"
	MethodResourcesSubscribe         = "resources/subscribe"
	MethodResourcesUnsubscribe       = "resources/unsubscribe"
	MethodResourcesTemplatesList     = "resources/templates/list"
	NotificationResourcesUpdated     = "notifications/resources/updated"
	NotificationResourcesListChanged = "notifications/resources/list_changed"

	MethodPromptsList            = "prompts/list"
	MethodPromptsGet             = "prompts/get"
	NotificationPromptsListChanged = "notifications/prompts/list_changed"

	MethodComplete = "completion/complete"

	MethodLoggingSetLevel       = "logging/setLevel"
	NotificationLoggingMessage  = "notifications/message"

	MethodSamplingCreateMessage = "sampling/createMessage"

	MethodElicitationCreate            = "elicitation/create"
	NotificationElicitationComplete    = "notifications/elicitation/complete"

	MethodRootsList              = "roots/list"
	NotificationRootsListChanged = "notifications/roots/list_changed"

	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
	NotificationProgress    = "notifications/progress"
)
