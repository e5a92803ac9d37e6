// ABOUTME: JSON envelope types for the browser-facing WebSocket channel
// ABOUTME: Flat message shapes matching what the web UI consumes and emits
package protocol

import (
	"github.com/goccy/go-json"
)

// Outbound envelope kinds.
const (
	MessageTypeInstances    = "instances"
	MessageTypeBrowse       = "browse"
	MessageTypeGetStatus    = "getStatus"
	MessageTypeStateChanged = "stateChanged"
	MessageTypeKeyValue     = "keyValue"
)

// Inbound envelope kinds.
const (
	RequestTypeBrowse  = "browse"
	RequestTypeCommand = "command"
)

// ServerMessage is an envelope sent to a browser client. Exactly the
// fields for its Type are populated.
type ServerMessage struct {
	Type      string          `json:"type"`
	Instances []Instance      `json:"instances,omitempty"`
	Items     []BrowseItem    `json:"items,omitempty"`
	Instance  string          `json:"instance,omitempty"`
	Data      *StatusSnapshot `json:"data,omitempty"`
	Events    EventMap        `json:"events,omitempty"`
	Key       string          `json:"key,omitempty"`
	Value     string          `json:"value,omitempty"`
}

// ClientRequest is an envelope received from a browser client.
type ClientRequest struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	GUID     string `json:"guid,omitempty"`
	Name     string `json:"name,omitempty"`
	Item     string `json:"item,omitempty"`
}

// EnvelopeFor converts a parsed protocol event into its client envelope.
func EnvelopeFor(ev Event) ServerMessage {
	switch e := ev.(type) {
	case InstancesEvent:
		return ServerMessage{Type: MessageTypeInstances, Instances: e.Instances}
	case BrowseEvent:
		return ServerMessage{Type: MessageTypeBrowse, Items: e.Items}
	case StatusEvent:
		status := e.Status
		return ServerMessage{Type: MessageTypeGetStatus, Instance: e.Instance, Data: &status}
	case StateChangedEvent:
		return ServerMessage{Type: MessageTypeStateChanged, Instance: e.Instance, Events: e.Events}
	case KeyValueEvent:
		return ServerMessage{Type: MessageTypeKeyValue, Key: e.Key, Value: e.Value}
	}
	return ServerMessage{}
}

// Encode marshals an envelope for the wire.
func (m ServerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeRequest unmarshals a client envelope.
func DecodeRequest(data []byte) (ClientRequest, error) {
	var req ClientRequest
	err := json.Unmarshal(data, &req)
	return req, err
}
