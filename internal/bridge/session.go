// ABOUTME: Per-client session owning a WebSocket, a device TCP connection, and parser state
// ABOUTME: Feeds raw device bytes through the framer and fans parsed events back to the client
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harperreed/mms-bridge/internal/config"
	"github.com/harperreed/mms-bridge/internal/device"
	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/protocol"
)

const sendBuffer = 100

// Session ties one browser client to its own device connection. Every
// client gets an isolated TCP socket, framer, and translation state so
// zones and browse paths never bleed between clients.
type Session struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	state  State
	framer *protocol.Framer
	stall  *time.Timer
	closed bool

	sendCh chan protocol.ServerMessage
	dev    *device.Conn

	stallTimeout time.Duration
}

func newSession(id string, conn *websocket.Conn, stallTimeout time.Duration) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		framer:       protocol.NewFramer(),
		sendCh:       make(chan protocol.ServerMessage, sendBuffer),
		stallTimeout: stallTimeout,
	}
}

// connectDevice dials the device and runs the handshake sequence. A
// failed dial leaves the session connected but inert; requests are
// dropped with a log line until the client reconnects.
func (s *Session) connectDevice(ctx context.Context, cfg config.DeviceConfig) {
	conn, err := device.Dial(ctx, device.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		ClientType:      cfg.ClientType,
		ClientVersion:   cfg.ClientVersion,
		InitInterval:    cfg.InitInterval,
		CommandInterval: cfg.CommandInterval,
	}, s.handleDeviceData, s.handleDeviceClosed)
	if err != nil {
		logging.Error().Err(err).Str("client", s.id).Msg("device connection failed")
		return
	}
	s.dev = conn
	conn.Bootstrap()
}

// handleRequest decodes and dispatches one client message. Malformed or
// incomplete requests are logged and dropped without a reply.
func (s *Session) handleRequest(data []byte) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		logging.Warn().Err(err).Str("client", s.id).Msg("undecodable client request")
		return
	}

	var tr Translation
	s.mu.Lock()
	switch req.Type {
	case protocol.RequestTypeBrowse:
		tr = s.state.TranslateBrowse(req)
	case protocol.RequestTypeCommand:
		tr = s.state.TranslateCommand(req)
	default:
		logging.Warn().Str("client", s.id).Str("type", req.Type).Msg("unknown request type")
	}
	s.mu.Unlock()

	if len(tr.Wire) > 0 {
		if s.dev == nil {
			logging.Warn().Str("client", s.id).Msg("dropping commands, no device connection")
		} else {
			s.dev.Send(tr.Wire...)
		}
	}
	if tr.Local != nil {
		s.send(*tr.Local)
	}
}

// handleDeviceData runs on the device read goroutine. The framer and the
// stall timer are guarded because client requests mutate session state
// concurrently.
func (s *Session) handleDeviceData(chunk []byte) {
	s.mu.Lock()
	events := s.framer.Feed(chunk)
	if s.framer.Pending() {
		s.resetStall()
	} else {
		s.stopStall()
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.send(protocol.EnvelopeFor(ev))
	}
}

func (s *Session) handleDeviceClosed(err error) {
	if err != nil {
		logging.Warn().Err(err).Str("client", s.id).Msg("device connection lost")
	}
}

// send queues an envelope for the writer goroutine, dropping it when the
// client cannot keep up or the session is tearing down.
func (s *Session) send(msg protocol.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.sendCh <- msg:
	default:
		logging.Warn().Str("client", s.id).Str("type", msg.Type).Msg("send buffer full, dropping message")
	}
}

// writer owns all writes to the WebSocket, including keepalive pings.
func (s *Session) writer() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			data, err := msg.Encode()
			if err != nil {
				logging.Error().Err(err).Str("client", s.id).Msg("encoding envelope")
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Warn().Err(err).Str("client", s.id).Msg("writing to client")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// teardown releases the device connection and stops the writer. Safe to
// call once; the server's defer is the only caller.
func (s *Session) teardown() {
	s.mu.Lock()
	s.closed = true
	s.stopStall()
	s.mu.Unlock()

	if s.dev != nil {
		s.dev.Close()
	}
	close(s.sendCh)
}

// resetStall arms the watchdog that discards a receive buffer the device
// never completed. Callers hold s.mu.
func (s *Session) resetStall() {
	if s.stall == nil {
		s.stall = time.AfterFunc(s.stallTimeout, s.stallFired)
		return
	}
	s.stall.Reset(s.stallTimeout)
}

func (s *Session) stopStall() {
	if s.stall != nil {
		s.stall.Stop()
	}
}

func (s *Session) stallFired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.framer.Pending() {
		return
	}
	logging.Warn().Str("client", s.id).Dur("timeout", s.stallTimeout).Msg("receive buffer stalled")
	s.framer.Clear()
}
