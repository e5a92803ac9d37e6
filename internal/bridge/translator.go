// ABOUTME: Translates structured client requests into MMS wire command lines
// ABOUTME: Handles instance-switch bootstrapping, browse filters, and playback commands
package bridge

import (
	"strings"

	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/protocol"
)

// State is the mutable per-session translation state: the selected zone,
// the album filter used by "Play all", and the mute toggle.
type State struct {
	Instance  string
	AlbumGUID string
	Mute      bool
}

// Translation is the outcome of translating one client request: zero or
// more wire lines for the device, and optionally a reply sent straight
// back to the requesting client.
type Translation struct {
	Wire  []string
	Local *protocol.ServerMessage
}

// playChoices is the synthetic menu offered when an ordinary title is
// selected. The names feed the play-option mapping on the follow-up
// PlayTitle request.
var playChoices = []string{"Play Now", "Play Next", "Replace Queue", "Add To Queue"}

// TranslateBrowse maps a browse request onto wire commands. Switching to a
// new instance prepends the bootstrap triple exactly once per switch.
func (st *State) TranslateBrowse(req protocol.ClientRequest) Translation {
	if req.Instance == "" {
		logging.Warn().Msg("browse request missing instance")
		return Translation{}
	}

	wire := st.instanceSwitch(req.Instance)

	if req.GUID == "" {
		// Back to the top menu; any stored browse path is stale now.
		st.AlbumGUID = ""
		return Translation{Wire: append(wire, "ClearMusicFilter", "BrowseTopMenu")}
	}

	switch req.Item {
	case "PickItem":
		wire = append(wire, "AckPickItem "+req.GUID)

	case "Album":
		st.AlbumGUID = req.GUID
		wire = append(wire, "SetMusicFilter Album={"+req.GUID+"}", "BrowseTitles")

	case "Artist":
		wire = append(wire, "SetMusicFilter Artist={"+req.GUID+"}", "BrowseAlbums")

	case "Composer":
		wire = append(wire, "SetMusicFilter Composer={"+req.GUID+"}", "BrowseTitles")

	case "Genre":
		wire = append(wire, "SetMusicFilter Genre={"+req.GUID+"}", "BrowseAlbums")

	case "Title":
		if req.Name == "Play all" {
			albumGUID := st.AlbumGUID
			if albumGUID == "" {
				albumGUID = req.GUID
			}
			option := playOption(req.Name)
			if option == "Unknown" {
				option = "Now"
			}
			wire = append(wire, "PlayAlbum "+albumGUID+" "+option)
			return Translation{Wire: wire}
		}
		// An ordinary title gets the play-choice menu directly; the device
		// is not touched.
		items := make([]protocol.BrowseItem, 0, len(playChoices))
		for _, name := range playChoices {
			items = append(items, protocol.BrowseItem{
				GUID:    req.GUID,
				Name:    name,
				Type:    "PlayTitle",
				ArtGUID: req.GUID,
			})
		}
		return Translation{Local: &protocol.ServerMessage{Type: protocol.MessageTypeBrowse, Items: items}}

	case "PlayTitle":
		name := req.Name
		if name == "" {
			name = "Now"
		}
		wire = append(wire, "PlayTitle "+req.GUID+" "+playOption(name))

	default:
		wire = append(wire, "ClearMusicFilter", "BrowseTopMenu")
	}

	return Translation{Wire: wire}
}

// TranslateCommand maps a playback command onto wire lines. Known commands
// pass through verbatim; unknown items pass through unchanged as a forward
// compatibility escape hatch.
func (st *State) TranslateCommand(req protocol.ClientRequest) Translation {
	if req.Instance == "" || req.Item == "" {
		logging.Warn().Str("item", req.Item).Msg("command request missing instance or item")
		return Translation{}
	}

	wire := st.instanceSwitch(req.Instance)

	verb, arg := splitCommand(req.Item)
	switch verb {
	case "Play", "Pause", "PlayPause", "SkipNext", "SkipPrevious",
		"ThumbsUp", "ThumbsDown", "Shuffle", "Repeat", "Rewind", "FastForward":
		wire = append(wire, verb)

	case "SetVolume", "Seek":
		wire = append(wire, verb+" "+arg)

	case "Mute":
		// The device expects MUTE ON/OFF in this exact casing, unlike the
		// CamelCase toggle commands above.
		if st.Mute {
			wire = append(wire, "MUTE OFF")
		} else {
			wire = append(wire, "MUTE ON")
		}
		st.Mute = !st.Mute

	default:
		wire = append(wire, req.Item)
	}

	return Translation{Wire: wire}
}

// instanceSwitch returns the bootstrap triple when the requested instance
// differs from the session's current one, and records the switch.
func (st *State) instanceSwitch(instance string) []string {
	if instance == st.Instance {
		return nil
	}
	st.Instance = instance
	return []string{"SetInstance " + instance, "GetStatus", "SubscribeEvents"}
}

// playOption maps a play-choice name to the wire option token.
func playOption(name string) string {
	switch {
	case strings.Contains(name, "Now"):
		return "Now"
	case strings.Contains(name, "Next"):
		return "Next"
	case strings.Contains(name, "Replace"):
		return "Replace"
	case strings.Contains(name, "Queue"):
		return "Append"
	}
	return "Unknown"
}

func splitCommand(item string) (string, string) {
	if sp := strings.IndexByte(item, ' '); sp > 0 {
		return item[:sp], item[sp+1:]
	}
	return item, ""
}
