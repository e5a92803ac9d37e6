// ABOUTME: Parser for embedded XML list payloads
// ABOUTME: Decodes Instances and browse lists from the fixed set of list roots
package protocol

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/metrics"
)

// ListKind discriminates the two XML payload families.
type ListKind string

const (
	ListKindInstances ListKind = "instances"
	ListKindBrowse    ListKind = "browse"
)

// ListResult is the outcome of parsing one XML block.
type ListResult struct {
	Kind      ListKind
	Instances []Instance
	Items     []BrowseItem
}

// childTags maps a list root element to the child element it carries.
// Unknown roots fall back to PickItem.
var childTags = map[string]string{
	"PickList":      "PickItem",
	"NowPlaying":    "Title",
	"Albums":        "Album",
	"Titles":        "Title",
	"Genres":        "Genre",
	"Composers":     "Composer",
	"Artists":       "Artist",
	"RadioSources":  "RadioSource",
	"RadioStations": "RadioStation",
	"RadioGenres":   "RadioGenre",
}

// ParseList decodes a complete XML block into instances or browse items.
// Malformed XML yields an empty browse result; parsing never panics and
// the error never escapes past this boundary.
func ParseList(block string) ListResult {
	// Strip any leading non-XML residue from the stream.
	if i := strings.IndexByte(block, '<'); i > 0 {
		block = block[i:]
	}

	root, children, err := decodeElements(block)
	if err != nil {
		logging.Warn().Err(err).Msg("malformed XML block")
		metrics.ParseFailures.WithLabelValues("xml").Inc()
		return ListResult{Kind: ListKindBrowse}
	}

	if root == "Instances" {
		return ListResult{Kind: ListKindInstances, Instances: parseInstances(children)}
	}

	childTag, ok := childTags[root]
	if !ok {
		childTag = "PickItem"
	}

	items := make([]BrowseItem, 0, len(children))
	for _, el := range children {
		if el.name != childTag {
			continue
		}
		items = append(items, browseItem(el, childTag))
	}
	return ListResult{Kind: ListKindBrowse, Items: items}
}

// element is one decoded child with its attributes.
type element struct {
	name  string
	attrs map[string]string
}

func (e element) attr(names ...string) string {
	for _, n := range names {
		if v, ok := e.attrs[n]; ok && v != "" {
			return v
		}
	}
	return ""
}

// decodeElements walks the block and collects the root name plus every
// depth-1 child element with its attributes.
func decodeElements(block string) (string, []element, error) {
	dec := xml.NewDecoder(strings.NewReader(block))
	dec.Strict = false

	var root string
	var children []element
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if root != "" && errors.Is(err, io.EOF) {
				break
			}
			return root, children, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				root = t.Name.Local
			} else if depth == 1 {
				attrs := make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					attrs[a.Name.Local] = a.Value
				}
				children = append(children, element{name: t.Name.Local, attrs: attrs})
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				return root, children, nil
			}
		}
	}

	return root, children, nil
}

func parseInstances(children []element) []Instance {
	instances := make([]Instance, 0, len(children))
	for _, el := range children {
		if el.name != "Instance" {
			continue
		}
		name := el.attr("name")
		friendly := el.attr("friendlyName")
		if friendly == "" {
			friendly = name
		}
		instances = append(instances, Instance{
			Name:         name,
			FriendlyName: friendly,
			Art:          el.attr("mArt"),
		})
	}
	return instances
}

func browseItem(el element, childTag string) BrowseItem {
	guid := el.attr("guid", "id")
	artGUID := el.attr("artGuid")
	if artGUID == "" {
		artGUID = guid
	}
	name := el.attr("name", "title")
	if name == "" {
		name = "Unnamed"
	}

	return BrowseItem{
		GUID:         guid,
		Name:         name,
		Type:         childTag,
		HasChildren:  el.attrs["hasChildren"] == "1",
		HasArt:       el.attrs["hasArt"] == "1",
		ArtGUID:      artGUID,
		BrowseAction: el.attrs["browseAction"],
		Duration:     el.attrs["duration"],
		Track:        el.attrs["track"],
		Album:        el.attrs["album"],
		Artist:       el.attrs["artist"],
	}
}
