// Package sendspin keeps the stream transport socket to the server open and reports its
// lifecycle to the socket session tracker.
package sendspin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/internal/backoff"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/session"
)

type Config struct {
	URL              string
	ClientID         string
	Name             string
	MaxReconnects    int
	HandshakeTimeout time.Duration
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client dials the stream transport endpoint, performs the hello exchange and forwards
// every text frame to the observer.
type Client struct {
	cfg      Config
	observer session.Observer
	dialer   *websocket.Dialer
	logger   *log.Entry

	mu   sync.Mutex
	conn *websocket.Conn
	kick chan struct{}
}

func New(cfg Config, observer session.Observer) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.Name == "" {
		cfg.Name = constant.ClientName
	}

	return &Client{
		cfg:      cfg,
		observer: observer,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:   log.For("sendspin").WithField("url", cfg.URL),
		kick:     make(chan struct{}, 1),
	}
}

// Run keeps the connection alive until ctx is cancelled. Each outage gets at most
// MaxReconnects attempts; after that the client idles until Kick.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if established {
			attempts = 0
		}
		attempts++

		logger := c.logger.WithField("attempt", attempts)
		if err != nil {
			logger = logger.WithError(err)
		}

		if c.cfg.MaxReconnects > 0 && attempts > c.cfg.MaxReconnects {
			logger.Warn("reconnect budget spent, waiting for network")
			select {
			case <-ctx.Done():
				return nil
			case <-c.kick:
				attempts = 0
			}
			continue
		}

		wait := backoff.Delay(attempts)
		logger.WithField("wait", wait).Info("reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-c.kick:
			attempts = 0
		case <-time.After(wait):
		}
	}
}

// Kick resets the reconnect budget and retries immediately.
func (c *Client) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// DropSockets closes the current connection. The close is reported to the observer by the read loop.
func (c *Client) DropSockets() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.logger.Info("dropping stream socket")
		_ = conn.Close()
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// session runs one connection. established reports whether the socket was opened.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	id := uuid.NewString()
	c.observer.SocketOpened(id, c.cfg.URL)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err = c.handshakeAndRead(conn, id)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	code := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}
	c.observer.SocketClosed(id, code)
	c.logger.WithFields(log.Fields{"socket": id, "code": code}).Info("stream socket closed")

	return true, err
}

func (c *Client) handshakeAndRead(conn *websocket.Conn, id string) error {
	if err := conn.WriteJSON(c.hello()); err != nil {
		return fmt.Errorf("send client/hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	greeted := false

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !greeted {
				return fmt.Errorf("waiting for %s: %w", session.TypeServerHello, err)
			}
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}

		c.observer.SocketMessage(id, data)

		if greeted {
			continue
		}
		var msg message
		if json.Unmarshal(data, &msg) == nil && msg.Type == session.TypeServerHello {
			greeted = true
			_ = conn.SetReadDeadline(time.Time{})
			c.logger.WithField("socket", id).Info("handshake complete")
		}
	}
}

func (c *Client) hello() map[string]any {
	return map[string]any{
		"type": "client/hello",
		"payload": map[string]any{
			"client_id":       c.cfg.ClientID,
			"name":            c.cfg.Name,
			"version":         1,
			"supported_roles": []string{"player@v1", "controller@v1", "metadata@v1"},
			"device_info": map[string]any{
				"product_name":     constant.App,
				"software_version": constant.Version,
			},
			"player_support": map[string]any{
				"supported_formats": []map[string]any{
					{"codec": "pcm", "sample_rate": 48000, "channels": 2, "bit_depth": 16},
				},
				"buffer_capacity":    32000000,
				"supported_commands": []string{"volume", "mute"},
			},
		},
	}
}
