// ABOUTME: Content-sniffing framer for the MMS byte stream
// ABOUTME: Splits device data into XML blocks, GetStatus reports, and command lines
package protocol

import (
	"strings"

	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/metrics"
)

// closingTags lists the known XML list roots. The stream carries no length
// framing, so a complete XML payload is recognized by the earliest closing
// tag from this set.
var closingTags = []string{
	"</Instances>",
	"</PickList>",
	"</NowPlaying>",
	"</Albums>",
	"</Titles>",
	"</Genres>",
	"</Composers>",
	"</Artists>",
	"</RadioSources>",
	"</RadioStations>",
	"</RadioGenres>",
}

type framerState int

const (
	stateIdle framerState = iota
	stateAccumulatingXML
	stateAccumulatingStatus
)

// Framer converts the append-only MMS byte stream into protocol events.
// TCP preserves no message boundaries, so unconsumed bytes are retained
// between Feed calls. Precedence per protocol unit: XML payloads, then
// GetStatus aggregation, then newline-delimited command lines.
type Framer struct {
	buf   strings.Builder
	state framerState
}

// NewFramer returns an empty framer in the idle state.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends newly received bytes and returns all events that became
// complete. Feeding a byte sequence split at arbitrary boundaries yields
// the same events as feeding it whole.
func (f *Framer) Feed(chunk []byte) []Event {
	f.buf.WriteString(string(chunk))

	var events []Event
	for {
		ev, again := f.step()
		if ev != nil {
			events = append(events, ev)
		}
		if !again {
			return events
		}
	}
}

// Pending reports whether an incomplete protocol unit is being held.
func (f *Framer) Pending() bool {
	return f.buf.Len() > 0
}

// Clear discards any partially accumulated unit. Used by the session stall
// timer when a block never completes; the next Feed starts clean.
func (f *Framer) Clear() {
	if f.buf.Len() > 0 {
		logging.Warn().Int("discarded_bytes", f.buf.Len()).Msg("clearing stalled receive buffer")
		metrics.BufferStalls.Inc()
	}
	f.buf.Reset()
	f.state = stateIdle
}

// step extracts at most one protocol unit. It returns the event (if any)
// and whether the caller should run another step.
func (f *Framer) step() (Event, bool) {
	buf := f.buf.String()
	if buf == "" {
		f.state = stateIdle
		return nil, false
	}

	// Once a GetStatus report has started, everything belongs to it until
	// the terminating StateChanged ... GetStatus=Done line arrives.
	if f.state == stateAccumulatingStatus {
		return f.finishStatus(buf)
	}

	// Complete lines that precede an XML or ReportState region are emitted
	// first. Without this, line traffic already in the buffer would be
	// swallowed into the following block, and event output would depend on
	// where the TCP chunk boundaries happened to fall.
	if nl, ok := lineBeforeSpecial(buf); ok {
		return f.emitLine(buf, nl)
	}

	// XML detection runs before line splitting: a <...> fragment straddling
	// two TCP chunks must never be mis-split as lines.
	if strings.Contains(buf, "<") && strings.Contains(buf, ">") {
		if idx, tag := earliestClosingTag(buf); idx >= 0 {
			end := idx + len(tag)
			block := buf[:end]
			f.setBuf(strings.TrimLeft(buf[end:], " \t\r\n"))
			f.state = stateIdle
			return parseXMLBlock(block), true
		}
		if !strings.Contains(buf, "StateChanged") {
			// Incomplete XML with no interleaved line traffic: hold the
			// whole buffer and wait for more bytes.
			f.state = stateAccumulatingXML
			return nil, false
		}
	}

	if strings.Contains(buf, "ReportState") {
		f.state = stateAccumulatingStatus
		return f.finishStatus(buf)
	}

	return f.nextLine(buf)
}

// finishStatus checks the accumulated report for completeness and decodes
// it as one status snapshot. Consumption stops at the end of the
// terminating line; bytes after it belong to the next unit.
func (f *Framer) finishStatus(buf string) (Event, bool) {
	done := strings.Index(buf, "GetStatus=Done")
	if done < 0 || !strings.Contains(buf[:done], "StateChanged") {
		return nil, false
	}
	end := done + len("GetStatus=Done")
	nl := strings.IndexByte(buf[end:], '\n')
	if nl < 0 {
		return nil, false
	}

	block := buf[:end+nl+1]
	f.setBuf(buf[end+nl+1:])
	f.state = stateIdle
	metrics.EventsParsed.WithLabelValues("getStatus").Inc()
	return StatusEvent{Instance: extractInstance(block), Status: DecodeStatus(block)}, true
}

// lineBeforeSpecial reports whether a complete line ends before the first
// XML or ReportState region in the buffer.
func lineBeforeSpecial(buf string) (int, bool) {
	special := strings.IndexByte(buf, '<')
	if rs := strings.Index(buf, "ReportState"); rs >= 0 && (special < 0 || rs < special) {
		special = rs
	}
	if special < 0 {
		return 0, false
	}
	nl := strings.IndexByte(buf[:special], '\n')
	return nl, nl >= 0
}

// nextLine extracts one newline-terminated line; a dangling tail without a
// newline stays in the buffer for the next Feed.
func (f *Framer) nextLine(buf string) (Event, bool) {
	nl := strings.IndexByte(buf, '\n')
	if nl < 0 {
		f.state = stateIdle
		return nil, false
	}
	return f.emitLine(buf, nl)
}

// emitLine consumes buf[:nl] as one line and classifies it.
func (f *Framer) emitLine(buf string, nl int) (Event, bool) {
	line := strings.TrimSpace(buf[:nl])
	f.setBuf(buf[nl+1:])
	f.state = stateIdle

	if line == "" {
		return nil, true
	}

	if strings.HasPrefix(line, "StateChanged") {
		sc, ok := ParseStateChanged(line)
		if !ok {
			return nil, true
		}
		metrics.EventsParsed.WithLabelValues("stateChanged").Inc()
		return StateChangedEvent{Instance: sc.Instance, Events: sc.Events}, true
	}

	if key, value, ok := splitKeyValue(line); ok {
		metrics.EventsParsed.WithLabelValues("keyValue").Inc()
		return KeyValueEvent{Key: key, Value: value}, true
	}

	logging.Debug().Str("line", line).Msg("unhandled device line")
	metrics.ParseFailures.WithLabelValues("line").Inc()
	return nil, true
}

func (f *Framer) setBuf(s string) {
	f.buf.Reset()
	f.buf.WriteString(s)
}

// earliestClosingTag returns the index and tag of the first complete list
// root terminator in buf, or -1 when none is present.
func earliestClosingTag(buf string) (int, string) {
	best := -1
	var bestTag string
	for _, tag := range closingTags {
		if idx := strings.Index(buf, tag); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestTag = tag
		}
	}
	return best, bestTag
}

// parseXMLBlock converts one complete XML payload into an event. Malformed
// XML yields an empty browse list rather than an error; the stream keeps
// flowing.
func parseXMLBlock(block string) Event {
	result := ParseList(block)
	if result.Kind == ListKindInstances {
		metrics.EventsParsed.WithLabelValues("instances").Inc()
		return InstancesEvent{Instances: result.Instances}
	}
	metrics.EventsParsed.WithLabelValues("browse").Inc()
	return BrowseEvent{Items: result.Items}
}

// splitKeyValue classifies a `<word> <rest-of-line>` report line.
func splitKeyValue(line string) (string, string, bool) {
	sp := strings.IndexByte(line, ' ')
	if sp <= 0 {
		return "", "", false
	}
	key := line[:sp]
	for _, r := range key {
		if !isWordChar(r) {
			return "", "", false
		}
	}
	value := strings.TrimSpace(line[sp+1:])
	if value == "" {
		return "", "", false
	}
	return key, value, true
}

func isWordChar(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z')
}
