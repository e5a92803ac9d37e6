// ABOUTME: GetStatus report decoder
// ABOUTME: Extracts StatusSnapshot fields from a ReportState block by per-field patterns
package protocol

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ZeroGUID is the fallback for a missing or malformed art GUID.
const ZeroGUID = "00000000-0000-0000-0000-000000000000"

// StatusSnapshot is a complete decoded GetStatus report for one zone.
// Volume is on the controller's 0-50 scale, not 0-100.
type StatusSnapshot struct {
	Instance           string `json:"instance"`
	BaseWebURL         string `json:"baseWebUrl"`
	PlayState          string `json:"playState"`
	TrackName          string `json:"trackName"`
	ArtistName         string `json:"artistName"`
	MediaName          string `json:"mediaName"`
	TrackDuration      int    `json:"trackDuration"`
	TrackTime          int    `json:"trackTime"`
	NowPlayingGUID     string `json:"nowPlayingGuid"`
	TrackQueueIndex    int    `json:"trackQueueIndex"`
	TotalTracks        int    `json:"totalTracks"`
	Shuffle            bool   `json:"shuffle"`
	Repeat             bool   `json:"repeat"`
	ThumbsUp           int    `json:"thumbsUp"`
	ThumbsDown         int    `json:"thumbsDown"`
	Volume             int    `json:"volume"`
	Mute               bool   `json:"mute"`
	ShuffleAvailable   bool   `json:"shuffleAvailable"`
	RepeatAvailable    bool   `json:"repeatAvailable"`
	ThumbsUpAvailable  bool   `json:"thumbsUpAvailable"`
	ThumbsDnAvailable  bool   `json:"thumbsDownAvailable"`
	SkipNextAvailable  bool   `json:"skipNextAvailable"`
	SkipPrevAvailable  bool   `json:"skipPrevAvailable"`
	PlayPauseAvailable bool   `json:"playPauseAvailable"`
	SeekAvailable      bool   `json:"seekAvailable"`
	MetaLabel1         string `json:"metaLabel1"`
	MetaData1          string `json:"metaData1"`
	MetaLabel2         string `json:"metaLabel2"`
	MetaData2          string `json:"metaData2"`
	MetaLabel3         string `json:"metaLabel3"`
	MetaData3          string `json:"metaData3"`
	MetaLabel4         string `json:"metaLabel4"`
	MetaData4          string `json:"metaData4"`
	NowPlayingType     string `json:"nowPlayingType"`
	NowPlayingSrce     string `json:"nowPlayingSrce"`
	NowPlayingSrceName string `json:"nowPlayingSrceName"`
}

var (
	reInstance = regexp.MustCompile(`ReportState\s+(\S+)`)
	reGUID     = regexp.MustCompile(`NowPlayingGuid=\{([A-Fa-f0-9-]{36})\}`)

	stringFields = map[string]*regexp.Regexp{}
	intFields    = map[string]*regexp.Regexp{}
	boolFields   = map[string]*regexp.Regexp{}
)

func init() {
	for _, name := range []string{
		"InstanceName", "BaseWebUrl", "PlayState", "TrackName", "ArtistName",
		"MediaName", "MetaLabel1", "MetaData1", "MetaLabel2", "MetaData2",
		"MetaLabel3", "MetaData3", "MetaLabel4", "MetaData4",
		"NowPlayingType", "NowPlayingSrce", "NowPlayingSrceName",
	} {
		stringFields[name] = regexp.MustCompile(name + `=([^\r\n]*)`)
	}
	for _, name := range []string{
		"TrackDuration", "TrackTime", "TrackQueueIndex", "TotalTracks", "Volume",
	} {
		intFields[name] = regexp.MustCompile(name + `=(\d+)`)
	}
	for _, name := range []string{"ThumbsUp", "ThumbsDown"} {
		intFields[name] = regexp.MustCompile(name + `=(-?\d+)`)
	}
	for _, name := range []string{
		"Shuffle", "Repeat", "Mute", "ShuffleAvailable", "RepeatAvailable",
		"ThumbsUpAvailable", "ThumbsDownAvailable", "SkipNextAvailable",
		"SkipPrevAvailable", "PlayPauseAvailable", "SeekAvailable",
	} {
		boolFields[name] = regexp.MustCompile(name + `=(True|False)`)
	}
}

// DecodeStatus extracts a StatusSnapshot from a complete ReportState block.
// Every field is looked up independently, so fields may appear in any order
// or be absent; absent fields take documented defaults.
func DecodeStatus(block string) StatusSnapshot {
	return StatusSnapshot{
		Instance:           getString(block, "InstanceName", "None"),
		BaseWebURL:         getString(block, "BaseWebUrl", ""),
		PlayState:          getString(block, "PlayState", "Stopped"),
		TrackName:          getString(block, "TrackName", ""),
		ArtistName:         getString(block, "ArtistName", ""),
		MediaName:          getString(block, "MediaName", ""),
		TrackDuration:      getInt(block, "TrackDuration", 0),
		TrackTime:          getInt(block, "TrackTime", 0),
		NowPlayingGUID:     getGUID(block),
		TrackQueueIndex:    getInt(block, "TrackQueueIndex", 0),
		TotalTracks:        getInt(block, "TotalTracks", 0),
		Shuffle:            getBool(block, "Shuffle"),
		Repeat:             getBool(block, "Repeat"),
		ThumbsUp:           getInt(block, "ThumbsUp", -1),
		ThumbsDown:         getInt(block, "ThumbsDown", -1),
		Volume:             getInt(block, "Volume", 50),
		Mute:               getBool(block, "Mute"),
		ShuffleAvailable:   getBool(block, "ShuffleAvailable"),
		RepeatAvailable:    getBool(block, "RepeatAvailable"),
		ThumbsUpAvailable:  getBool(block, "ThumbsUpAvailable"),
		ThumbsDnAvailable:  getBool(block, "ThumbsDownAvailable"),
		SkipNextAvailable:  getBool(block, "SkipNextAvailable"),
		SkipPrevAvailable:  getBool(block, "SkipPrevAvailable"),
		PlayPauseAvailable: getBool(block, "PlayPauseAvailable"),
		SeekAvailable:      getBool(block, "SeekAvailable"),
		MetaLabel1:         getString(block, "MetaLabel1", ""),
		MetaData1:          getString(block, "MetaData1", ""),
		MetaLabel2:         getString(block, "MetaLabel2", ""),
		MetaData2:          getString(block, "MetaData2", ""),
		MetaLabel3:         getString(block, "MetaLabel3", ""),
		MetaData3:          getString(block, "MetaData3", ""),
		MetaLabel4:         getString(block, "MetaLabel4", ""),
		MetaData4:          getString(block, "MetaData4", ""),
		NowPlayingType:     getString(block, "NowPlayingType", ""),
		NowPlayingSrce:     getString(block, "NowPlayingSrce", ""),
		NowPlayingSrceName: getString(block, "NowPlayingSrceName", ""),
	}
}

// extractInstance pulls the zone name from the first ReportState line.
func extractInstance(block string) string {
	if m := reInstance.FindStringSubmatch(block); m != nil {
		return m[1]
	}
	return ""
}

func getString(block, name, fallback string) string {
	if m := stringFields[name].FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

func getInt(block, name string, fallback int) int {
	if m := intFields[name].FindStringSubmatch(block); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return fallback
}

func getBool(block, name string) bool {
	if m := boolFields[name].FindStringSubmatch(block); m != nil {
		return m[1] == "True"
	}
	return false
}

// getGUID returns the braced now-playing art GUID, validated as a UUID.
// Missing or malformed values fall back to the all-zero GUID.
func getGUID(block string) string {
	m := reGUID.FindStringSubmatch(block)
	if m == nil {
		return ZeroGUID
	}
	if _, err := uuid.Parse(m[1]); err != nil {
		return ZeroGUID
	}
	return m[1]
}
