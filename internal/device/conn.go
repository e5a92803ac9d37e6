// ABOUTME: TCP connection to the MMS controller
// ABOUTME: Paced command writer plus raw receive loop, one connection per session
package device

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/harperreed/mms-bridge/internal/logging"
	"github.com/harperreed/mms-bridge/internal/metrics"
)

const dialTimeout = 5 * time.Second

// Config holds the controller endpoint and pacing policy.
type Config struct {
	Host          string
	Port          int
	ClientType    string
	ClientVersion string

	// InitInterval paces the bootstrap sequence; CommandInterval paces
	// translated client commands. The controller silently drops commands
	// arriving faster than it processes them, so pacing is mandatory.
	InitInterval    time.Duration
	CommandInterval time.Duration
}

type queuedLine struct {
	line  string
	delay time.Duration
}

// Conn is one device connection. Each client session dials its own; the
// connection is never shared across sessions.
type Conn struct {
	cfg    Config
	conn   net.Conn
	sendCh chan queuedLine

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to the controller and starts the receive and paced-write
// loops. onData is called with each raw chunk; onClosed is called once
// when the connection drops, with the read error.
func Dial(ctx context.Context, cfg Config, onData func([]byte), onClosed func(error)) (*Conn, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	d := net.Dialer{Timeout: dialTimeout}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device at %s: %w", addr, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		cfg:    cfg,
		conn:   conn,
		sendCh: make(chan queuedLine, 64),
		ctx:    cctx,
		cancel: cancel,
	}

	logging.Info().Str("addr", addr).Msg("connected to device")

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop(onData, onClosed)
	}()
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()

	return c, nil
}

// Bootstrap queues the once-per-connection initialization sequence, paced
// at the init interval.
func (c *Conn) Bootstrap() {
	c.enqueue(c.cfg.InitInterval,
		"SetClientType "+c.cfg.ClientType,
		"SetClientVersion "+c.cfg.ClientVersion,
		"SetOption supports_inputbox=true",
		"SetOption supports_urls=true",
		"SetHost "+c.cfg.Host,
		"SetXmlMode Lists",
		"SetEncoding 65001",
		"SetPickListCount 100000",
		"BrowseInstances",
	)
}

// Send queues command lines, paced at the command interval. Lines from one
// call are written in order; the pacing delay serializes them.
func (c *Conn) Send(lines ...string) {
	c.enqueue(c.cfg.CommandInterval, lines...)
}

// Close tears the connection down and cancels any pending pacing delays so
// nothing is written to the closed socket.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *Conn) enqueue(delay time.Duration, lines ...string) {
	for _, line := range lines {
		select {
		case c.sendCh <- queuedLine{line: line, delay: delay}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) readLoop(onData func([]byte), onClosed func(error)) {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}
		if err != nil {
			if c.ctx.Err() == nil {
				logging.Warn().Err(err).Msg("device connection lost")
			}
			c.cancel()
			if onClosed != nil {
				onClosed(err)
			}
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case q := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if _, err := c.conn.Write([]byte(q.line + "\r\n")); err != nil {
				logging.Warn().Err(err).Str("command", q.line).Msg("device write failed")
				c.cancel()
				return
			}
			logging.Debug().Str("command", q.line).Msg("sent to device")
			metrics.WireCommands.Inc()

			// Inter-command pacing. Cancellation interrupts the delay so a
			// closing session never blocks here.
			select {
			case <-time.After(q.delay):
			case <-c.ctx.Done():
				return
			}
		}
	}
}
