package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

// ErrConnectivity is returned once the reconnect budget is spent.
var ErrConnectivity = errors.New("connectivity lost")

type DialConfig struct {
	URL         string // ws://host:port/ws
	Token       string
	Delay       time.Duration
	MaxAttempts int
}

func (c *DialConfig) defaults() {
	if c.Delay <= 0 {
		c.Delay = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// Conn is a client socket. Writes are serialized; reads belong to one goroutine.
type Conn struct {
	cfg DialConfig
	log *zap.SugaredLogger

	mu sync.Mutex
	ws *websocket.Conn
}

// Dial connects with a fixed delay between attempts and gives up with
// ErrConnectivity after cfg.MaxAttempts tries.
func Dial(ctx context.Context, cfg DialConfig, log *zap.SugaredLogger) (*Conn, error) {
	cfg.defaults()
	c := &Conn{cfg: cfg, log: log}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	target, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("socket url: %w", err)
	}
	q := target.Query()
	q.Set("token", c.cfg.Token)
	target.RawQuery = q.Encode()

	attempt := 0
	rejected := false
	op := func() error {
		attempt++
		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				rejected = true
				return backoff.Permanent(fmt.Errorf("handshake rejected: %w", err))
			}
			c.log.Warnw("dial failed", "attempt", attempt, "error", err)
			return err
		}
		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.Delay), uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if rejected || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w after %d attempts: %v", ErrConnectivity, attempt, err)
	}
	return nil
}

// Reconnect drops the current socket and dials again under the same policy.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Conn) Send(event string, v any) error {
	env, err := protocol.New(event, v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(env)
}

func (c *Conn) Receive() (protocol.Envelope, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	var env protocol.Envelope
	err := ws.ReadJSON(&env)
	return env, err
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}
