// ABOUTME: Tests for the stream framer state machine
// ABOUTME: Covers chunk-boundary invariance, precedence, and stall recovery
package protocol

import (
	"reflect"
	"testing"
)

const albumsXML = `<Albums><Album guid="{11111111-1111-1111-1111-111111111111}" name="Foo" hasChildren="1"/></Albums>`

const statusBlock = "ReportState Zone1 PlayState=Playing\r\n" +
	"ReportState Zone1 TrackName=Sunrise\r\n" +
	"ReportState Zone1 Volume=30\r\n" +
	"StateChanged Zone1 GetStatus=Done\r\n"

func feedAll(t *testing.T, chunks ...string) []Event {
	t.Helper()
	f := NewFramer()
	var events []Event
	for _, c := range chunks {
		events = append(events, f.Feed([]byte(c))...)
	}
	if f.Pending() {
		t.Fatalf("framer left %v pending after full input", f.buf.String())
	}
	return events
}

func TestChunkBoundaryInvariance(t *testing.T) {
	stream := albumsXML +
		"StateChanged Zone1 ThumbsUp=1 ThumbsDown=-1 Volume=30\n" +
		"SubscribeEvents True\n" +
		statusBlock

	whole := feedAll(t, stream)

	for split := 1; split < len(stream); split++ {
		parts := feedAll(t, stream[:split], stream[split:])
		if !reflect.DeepEqual(whole, parts) {
			t.Fatalf("split at %d diverged:\nwhole: %#v\nparts: %#v", split, whole, parts)
		}
	}
}

func TestXMLExtractionLeavesNoResidue(t *testing.T) {
	f := NewFramer()
	events := f.Feed([]byte(albumsXML))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if f.Pending() {
		t.Errorf("expected empty buffer after complete block, got %q", f.buf.String())
	}

	be, ok := events[0].(BrowseEvent)
	if !ok {
		t.Fatalf("expected BrowseEvent, got %T", events[0])
	}
	if len(be.Items) != 1 || be.Items[0].Type != "Album" || !be.Items[0].HasChildren {
		t.Errorf("unexpected browse items: %#v", be.Items)
	}
	if be.Items[0].ArtGUID != be.Items[0].GUID {
		t.Errorf("artGuid should default to guid, got %q vs %q", be.Items[0].ArtGUID, be.Items[0].GUID)
	}
}

func TestIncompleteXMLHeld(t *testing.T) {
	f := NewFramer()
	events := f.Feed([]byte(`<Albums><Album guid="{A}" name="Fo`))
	if len(events) != 0 {
		t.Fatalf("expected no events for incomplete XML, got %#v", events)
	}
	if !f.Pending() {
		t.Fatal("expected incomplete XML to be held")
	}

	events = f.Feed([]byte(`o"/></Albums>`))
	if len(events) != 1 {
		t.Fatalf("expected 1 event after completion, got %d", len(events))
	}
	if f.Pending() {
		t.Errorf("expected empty buffer, got %q", f.buf.String())
	}
}

func TestXMLPriorityOverLines(t *testing.T) {
	// An XML block containing newlines must not be split as lines.
	block := "<Titles>\n<Title guid=\"{B}\" name=\"One\"/>\n<Title guid=\"{C}\" name=\"Two\"/>\n</Titles>"
	f := NewFramer()
	events := f.Feed([]byte(block))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %#v", len(events), events)
	}
	be := events[0].(BrowseEvent)
	if len(be.Items) != 2 {
		t.Errorf("expected 2 titles, got %#v", be.Items)
	}
}

func TestGetStatusAggregation(t *testing.T) {
	f := NewFramer()

	events := f.Feed([]byte("ReportState Zone1 PlayState=Playing\r\n"))
	if len(events) != 0 {
		t.Fatalf("status should aggregate until done, got %#v", events)
	}

	events = f.Feed([]byte("ReportState Zone1 Volume=30\r\nStateChanged Zone1 GetStatus=Done\r\n"))
	if len(events) != 1 {
		t.Fatalf("expected 1 status event, got %d", len(events))
	}

	se, ok := events[0].(StatusEvent)
	if !ok {
		t.Fatalf("expected StatusEvent, got %T", events[0])
	}
	if se.Instance != "Zone1" {
		t.Errorf("expected instance Zone1, got %q", se.Instance)
	}
	if se.Status.PlayState != "Playing" {
		t.Errorf("expected PlayState Playing, got %q", se.Status.PlayState)
	}
	if se.Status.Volume != 30 {
		t.Errorf("expected volume 30, got %d", se.Status.Volume)
	}
	if f.Pending() {
		t.Errorf("expected cleared accumulator, got %q", f.buf.String())
	}
}

func TestStatusConsumesOnlyItsOwnLines(t *testing.T) {
	// Line traffic arriving in the same chunk as the report terminator must
	// survive the aggregation.
	f := NewFramer()
	events := f.Feed([]byte(statusBlock + "SubscribeEvents True\n"))

	if len(events) != 2 {
		t.Fatalf("expected status + key/value, got %d: %#v", len(events), events)
	}
	if _, ok := events[0].(StatusEvent); !ok {
		t.Fatalf("expected StatusEvent first, got %T", events[0])
	}
	kv, ok := events[1].(KeyValueEvent)
	if !ok {
		t.Fatalf("expected KeyValueEvent second, got %T", events[1])
	}
	if kv.Key != "SubscribeEvents" {
		t.Errorf("unexpected key: %q", kv.Key)
	}
}

func TestLineClassification(t *testing.T) {
	f := NewFramer()
	events := f.Feed([]byte("StateChanged Zone1 Volume=30\nSubscribeEvents True\ngarbage-with-no-space\ndangling"))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %#v", len(events), events)
	}

	sc, ok := events[0].(StateChangedEvent)
	if !ok {
		t.Fatalf("expected StateChangedEvent first, got %T", events[0])
	}
	if sc.Instance != "Zone1" || sc.Events["Volume"] != "30" {
		t.Errorf("unexpected state change: %#v", sc)
	}

	kv, ok := events[1].(KeyValueEvent)
	if !ok {
		t.Fatalf("expected KeyValueEvent second, got %T", events[1])
	}
	if kv.Key != "SubscribeEvents" || kv.Value != "True" {
		t.Errorf("unexpected key/value: %#v", kv)
	}

	// Partial line stays buffered for the next call.
	if f.buf.String() != "dangling" {
		t.Errorf("expected dangling tail retained, got %q", f.buf.String())
	}
}

func TestStallClearThenCleanParse(t *testing.T) {
	f := NewFramer()

	f.Feed([]byte("<Albums><Album guid=\"{A}\" na"))
	if !f.Pending() {
		t.Fatal("expected pending partial XML")
	}

	// Stall timer fires: the partial accumulation is discarded.
	f.Clear()
	if f.Pending() {
		t.Fatal("expected empty buffer after Clear")
	}

	// A later complete block parses with no contamination.
	events := f.Feed([]byte(albumsXML))
	if len(events) != 1 {
		t.Fatalf("expected 1 event after recovery, got %d", len(events))
	}
	be := events[0].(BrowseEvent)
	if len(be.Items) != 1 || be.Items[0].Name != "Foo" {
		t.Errorf("unexpected items after recovery: %#v", be.Items)
	}
}

func TestDanglingXMLWithStateChangedNotBlocked(t *testing.T) {
	// A StateChanged line interleaved with a dangling '<' must still be
	// processed as a line.
	f := NewFramer()
	events := f.Feed([]byte("StateChanged Zone1 Mute=True\n<Albums><Album "))
	if len(events) != 1 {
		t.Fatalf("expected the StateChanged line to be emitted, got %#v", events)
	}
	if _, ok := events[0].(StateChangedEvent); !ok {
		t.Fatalf("expected StateChangedEvent, got %T", events[0])
	}
	if !f.Pending() {
		t.Error("expected the dangling XML fragment to remain buffered")
	}
}

func TestBackToBackXMLBlocks(t *testing.T) {
	stream := `<Instances><Instance name="Zone1" friendlyName="Kitchen"/></Instances>` + albumsXML
	f := NewFramer()
	events := f.Feed([]byte(stream))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if _, ok := events[0].(InstancesEvent); !ok {
		t.Errorf("expected InstancesEvent first, got %T", events[0])
	}
	if _, ok := events[1].(BrowseEvent); !ok {
		t.Errorf("expected BrowseEvent second, got %T", events[1])
	}
}
