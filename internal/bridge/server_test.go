// ABOUTME: End-to-end tests for the WebSocket server
// ABOUTME: Drives real WebSocket clients against a stub device TCP listener
package bridge

import (
	"bufio"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/harperreed/mms-bridge/internal/config"
	"github.com/harperreed/mms-bridge/internal/protocol"
)

// stubDevice is a minimal MMS endpoint: it records the lines it receives
// and lets tests push raw bytes back.
type stubDevice struct {
	ln    net.Listener
	lines chan string
	conns chan net.Conn
}

func startStubDevice(t *testing.T) *stubDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	d := &stubDevice{ln: ln, lines: make(chan string, 64), conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			d.conns <- conn
			go func(c net.Conn) {
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					d.lines <- sc.Text()
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *stubDevice) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(d.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func (d *stubDevice) nextLine(t *testing.T) string {
	t.Helper()
	select {
	case line := <-d.lines:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for device line")
		return ""
	}
}

func (d *stubDevice) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for device connection")
		return nil
	}
}

func testConfig(devicePort int) *config.Config {
	cfg := config.Default()
	cfg.Device.Host = "127.0.0.1"
	cfg.Device.Port = devicePort
	cfg.Device.InitInterval = time.Millisecond
	cfg.Device.CommandInterval = time.Millisecond
	cfg.Server.StaticDir = ""
	return cfg
}

func dialWS(t *testing.T, httpURL, clientID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	if clientID != "" {
		wsURL += "?clientID=" + clientID
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg protocol.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestSessionBootstrapsDevice(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dialWS(t, ts.URL, "client-1")

	want := []string{
		"SetClientType mms-bridge",
		"SetClientVersion 1.0.0.0",
		"SetOption supports_inputbox=true",
		"SetOption supports_urls=true",
		"SetHost 127.0.0.1",
		"SetXmlMode Lists",
		"SetEncoding 65001",
		"SetPickListCount 100000",
		"BrowseInstances",
	}
	for _, w := range want {
		got := dev.nextLine(t)
		if got != w {
			t.Fatalf("bootstrap line = %q, want %q", got, w)
		}
	}
}

func TestDeviceEventsReachClient(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ws := dialWS(t, ts.URL, "client-1")
	devConn := dev.conn(t)

	devConn.Write([]byte(`<Instances total="1"><Instance name="Den" friendlyName="The Den" mArt="{c0a8646f-2c3b-4c3e-9a1d-5b8f2d7e4a10}"/></Instances>` + "\r\n"))

	msg := readEnvelope(t, ws)
	if msg.Type != protocol.MessageTypeInstances {
		t.Fatalf("type = %q, want instances", msg.Type)
	}
	if len(msg.Instances) != 1 || msg.Instances[0].Name != "Den" {
		t.Fatalf("instances = %+v", msg.Instances)
	}
}

func TestBrowseRequestReachesDevice(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ws := dialWS(t, ts.URL, "client-1")

	// Drain the bootstrap sequence first.
	for i := 0; i < 9; i++ {
		dev.nextLine(t)
	}

	req, _ := json.Marshal(protocol.ClientRequest{Type: protocol.RequestTypeBrowse, Instance: "Den"})
	if err := ws.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatal(err)
	}

	want := []string{"SetInstance Den", "GetStatus", "SubscribeEvents", "ClearMusicFilter", "BrowseTopMenu"}
	for _, w := range want {
		got := dev.nextLine(t)
		if got != w {
			t.Fatalf("wire line = %q, want %q", got, w)
		}
	}
}

func TestOrdinaryTitleAnsweredLocally(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ws := dialWS(t, ts.URL, "client-1")

	req, _ := json.Marshal(protocol.ClientRequest{
		Type: protocol.RequestTypeBrowse, Instance: "Den",
		GUID: "t-1", Item: "Title", Name: "Sunrise",
	})
	if err := ws.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatal(err)
	}

	msg := readEnvelope(t, ws)
	if msg.Type != protocol.MessageTypeBrowse {
		t.Fatalf("type = %q, want browse", msg.Type)
	}
	if len(msg.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(msg.Items))
	}
}

func TestMissingClientIDClosed(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ws := dialWS(t, ts.URL, "")
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
}

func TestDuplicateClientIDRejected(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	dialWS(t, ts.URL, "client-1")
	dup := dialWS(t, ts.URL, "client-1")
	dup.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := dup.ReadMessage(); err == nil {
		t.Fatal("expected duplicate to be closed")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	dev := startStubDevice(t)
	srv := New(testConfig(dev.port(t)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ws1 := dialWS(t, ts.URL, "client-1")
	c1 := dev.conn(t)
	ws2 := dialWS(t, ts.URL, "client-2")
	dev.conn(t)

	// Only client-1's device socket speaks; client-2 must hear nothing.
	c1.Write([]byte("SubscribeEvents Done\r\n"))

	msg := readEnvelope(t, ws1)
	if msg.Type != protocol.MessageTypeKeyValue || msg.Key != "SubscribeEvents" || msg.Value != "Done" {
		t.Fatalf("client-1 got %+v", msg)
	}

	ws2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := ws2.ReadMessage(); err == nil {
		t.Fatal("client-2 received an event meant for client-1")
	}
}
