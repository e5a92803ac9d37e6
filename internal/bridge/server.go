// ABOUTME: HTTP and WebSocket front end for the bridge
// ABOUTME: Upgrades /ws connections into sessions and serves metrics, artwork, and static assets
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harperreed/mms-bridge/internal/artwork"
	"github.com/harperreed/mms-bridge/internal/config"
	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/metrics"
	"github.com/harperreed/mms-bridge/internal/protocol"
)

// Server accepts browser WebSocket connections and owns the session
// registry. Each accepted connection gets its own Session and device
// socket.
type Server struct {
	cfg      *config.Config
	upgrader websocket.Upgrader

	sessionsMu sync.RWMutex
	sessions   map[string]*Session

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func New(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The web UI may be served from a different origin than the
			// bridge itself.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Router builds the HTTP surface: the WebSocket endpoint, the artwork
// proxy, Prometheus metrics, and the static web UI.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/ws", s.handleWebSocket)
	art := artwork.NewProxy(s.cfg.Device.Host, s.cfg.Device.ArtPort)
	r.Get("/art/{guid}", art.ServeHTTP)
	if s.cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if s.cfg.Server.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
	}
	return r
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Info().Str("addr", addr).Msg("bridge listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// broadcast fans one envelope out to every connected session.
func (s *Server) broadcast(msg protocol.ServerMessage) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	for _, sess := range s.sessions {
		sess.send(msg)
	}
}

// Shutdown stops accepting connections and tears down every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.broadcast(protocol.ServerMessage{Type: protocol.MessageTypeKeyValue, Key: "Bridge", Value: "ShuttingDown"})

	s.sessionsMu.Lock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.sessionsMu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if clientID == "" {
		logging.Warn().Str("remote", r.RemoteAddr).Msg("connection missing clientID, closing")
		return
	}

	sess := newSession(clientID, conn, s.cfg.Device.StallTimeout)

	s.sessionsMu.Lock()
	if _, exists := s.sessions[clientID]; exists {
		s.sessionsMu.Unlock()
		logging.Warn().Str("client", clientID).Msg("duplicate clientID, rejecting")
		return
	}
	s.sessions[clientID] = sess
	s.sessionsMu.Unlock()

	metrics.ActiveSessions.Inc()
	logging.Info().Str("client", clientID).Str("remote", r.RemoteAddr).Msg("client connected")

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, clientID)
		s.sessionsMu.Unlock()
		sess.teardown()
		metrics.ActiveSessions.Dec()
		logging.Info().Str("client", clientID).Msg("client disconnected")
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writer()
	}()

	sess.connectDevice(s.ctx, s.cfg.Device)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("client", clientID).Msg("websocket read error")
			}
			return
		}
		sess.handleRequest(data)
	}
}
