// ABOUTME: Event types produced by the MMS stream framer
// ABOUTME: One concrete type per protocol unit parsed off the wire
package protocol

// Event is a decoded protocol unit from the device stream.
type Event interface {
	isEvent()
}

// InstancesEvent carries the zone list from a BrowseInstances response.
type InstancesEvent struct {
	Instances []Instance
}

// BrowseEvent carries a browse list from an XML payload.
type BrowseEvent struct {
	Items []BrowseItem
}

// StatusEvent carries a complete, decoded GetStatus report.
type StatusEvent struct {
	Instance string
	Status   StatusSnapshot
}

// StateChangedEvent carries one incremental StateChanged update.
type StateChangedEvent struct {
	Instance string
	Events   EventMap
}

// KeyValueEvent carries a generic `<word> <rest>` report line.
type KeyValueEvent struct {
	Key   string
	Value string
}

func (InstancesEvent) isEvent()    {}
func (BrowseEvent) isEvent()       {}
func (StatusEvent) isEvent()       {}
func (StateChangedEvent) isEvent() {}
func (KeyValueEvent) isEvent()     {}

// Instance describes one addressable playback zone on the controller.
type Instance struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendlyName"`
	Art          string `json:"art"`
}

// BrowseItem is one entry of a browsable list.
type BrowseItem struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	HasChildren  bool   `json:"hasChildren"`
	HasArt       bool   `json:"hasArt"`
	ArtGUID      string `json:"artGuid"`
	BrowseAction string `json:"browseAction,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Track        string `json:"track,omitempty"`
	Album        string `json:"album,omitempty"`
	Artist       string `json:"artist,omitempty"`
}

// EventMap holds StateChanged key/value pairs after type coercion. Values
// are bool, int, or string; unknown keys pass through as strings.
type EventMap map[string]any
