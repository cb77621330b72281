package messages

import (
	"fmt"
	"strings"
)

// OSC message types and address constants understood by the render bridge

// Message types
type MessageType string

const (
	// Application messages
	MsgConnect    MessageType = "connect"
	MsgDisconnect MessageType = "disconnect"

	// Project messages
	MsgProjectItems     MessageType = "project_items"
	MsgProjectSelection MessageType = "project_selection"

	// Composition messages
	MsgCompNumLayers   MessageType = "comp_num_layers"
	MsgCompLayerText   MessageType = "comp_layer_text"
	MsgCompLayerByName MessageType = "comp_layer_by_name"
	MsgLayerEffect     MessageType = "layer_effect"
	MsgEffectProperty  MessageType = "effect_property"

	// Render queue messages
	MsgQueueClear  MessageType = "queue_clear"
	MsgQueueAdd    MessageType = "queue_add"
	MsgQueueRender MessageType = "queue_render"
	MsgQueueItems  MessageType = "queue_items"
)

// OSC Address patterns
const (
	// Application level
	AddrConnect    = "/connect"
	AddrDisconnect = "/disconnect"

	// Project level
	AddrProjectItems     = "/project/items"
	AddrProjectSelection = "/project/selection"

	// Composition level (by name)
	AddrCompNumLayers   = "/comp/{comp}/numLayers"
	AddrCompLayerText   = "/comp/{comp}/layer/{layer}/text"
	AddrCompLayerByName = "/comp/{comp}/layerByName"
	AddrLayerEffect     = "/comp/{comp}/layer/{layer}/effect"
	AddrEffectProperty  = "/comp/{comp}/layer/{layer}/effect/{effect}/property/{property}"

	// Render queue
	AddrQueueClear  = "/renderQueue/clear"
	AddrQueueAdd    = "/renderQueue/add"
	AddrQueueRender = "/renderQueue/render"
	AddrQueueItems  = "/renderQueue/items"
)

// ReplyPrefix is prepended to a request address by the bridge when it answers
const ReplyPrefix = "/reply"

// Error replies that report an absent object rather than a failed request
const (
	ReplyErrNoText   = "no text"
	ReplyErrNotFound = "not found"
)

// OSCAddressBuilder builds OSC addresses from message types and parameters
type OSCAddressBuilder struct {
	projectID string
}

// NewOSCAddressBuilder creates a new address builder
func NewOSCAddressBuilder(projectID string) *OSCAddressBuilder {
	return &OSCAddressBuilder{
		projectID: projectID,
	}
}

// ProjectID returns the project the builder scopes addresses to
func (b *OSCAddressBuilder) ProjectID() string {
	return b.projectID
}

// BuildAddress builds an OSC address from a message type and parameters.
// Parameter values are escaped so composition names containing spaces or
// slashes stay within a single address segment.
func (b *OSCAddressBuilder) BuildAddress(msgType MessageType, params map[string]string) string {
	var address string

	switch msgType {
	case MsgConnect:
		return AddrConnect
	case MsgDisconnect:
		return AddrDisconnect
	case MsgProjectItems:
		address = AddrProjectItems
	case MsgProjectSelection:
		address = AddrProjectSelection
	case MsgCompNumLayers:
		address = AddrCompNumLayers
	case MsgCompLayerText:
		address = AddrCompLayerText
	case MsgCompLayerByName:
		address = AddrCompLayerByName
	case MsgLayerEffect:
		address = AddrLayerEffect
	case MsgEffectProperty:
		address = AddrEffectProperty
	case MsgQueueClear:
		address = AddrQueueClear
	case MsgQueueAdd:
		address = AddrQueueAdd
	case MsgQueueRender:
		address = AddrQueueRender
	case MsgQueueItems:
		address = AddrQueueItems
	default:
		return ""
	}

	for key, value := range params {
		placeholder := fmt.Sprintf("{%s}", key)
		address = strings.ReplaceAll(address, placeholder, EscapeSegment(value))
	}

	return b.GetProjectPrefix() + address
}

// BuildReplyAddress builds a reply address for a given request address
func (b *OSCAddressBuilder) BuildReplyAddress(requestAddress string) string {
	return ReplyPrefix + requestAddress
}

// GetProjectPrefix returns the project prefix for addresses that need it
func (b *OSCAddressBuilder) GetProjectPrefix() string {
	if b.projectID == "" {
		return ""
	}
	return fmt.Sprintf("/project_id/%s", b.projectID)
}

// segmentEscaper replaces characters that are either path separators or OSC
// pattern-matching metacharacters.
var segmentEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	" ", "%20",
	"#", "%23",
	"*", "%2A",
	"?", "%3F",
	",", "%2C",
	"[", "%5B",
	"]", "%5D",
	"{", "%7B",
	"}", "%7D",
)

var segmentUnescaper = strings.NewReplacer(
	"%2F", "/",
	"%20", " ",
	"%23", "#",
	"%2A", "*",
	"%3F", "?",
	"%2C", ",",
	"%5B", "[",
	"%5D", "]",
	"%7B", "{",
	"%7D", "}",
	"%25", "%",
)

// EscapeSegment escapes a single address segment
func EscapeSegment(s string) string {
	return segmentEscaper.Replace(s)
}

// UnescapeSegment reverses EscapeSegment
func UnescapeSegment(s string) string {
	return segmentUnescaper.Replace(s)
}

// SplitAddress strips the project prefix and splits an address into
// unescaped segments. It is used by the mock bridge to route requests.
func SplitAddress(address string) []string {
	trimmed := strings.TrimPrefix(address, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 && parts[0] == "project_id" {
		parts = parts[2:]
	}
	for i, p := range parts {
		parts[i] = UnescapeSegment(p)
	}
	return parts
}
