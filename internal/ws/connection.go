package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

const sendBuffer = 256

// Connection is one websocket of an authenticated actor.
type Connection struct {
	id      string
	actor   domain.Actor
	ws      *websocket.Conn
	send    chan protocol.Envelope
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func newConnection(conn *websocket.Conn, actor domain.Actor, cfg Config, m *metrics.Metrics) *Connection {
	return &Connection{
		id:      uuid.NewString(),
		actor:   actor,
		ws:      conn,
		send:    make(chan protocol.Envelope, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		metrics: m,
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.actor.ID }

// Send queues env. A connection whose buffer is full is closed rather than
// allowed to stall broadcasts.
func (c *Connection) Send(env protocol.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		c.metrics.Dropped()
		c.Close()
		return false
	}
}

// Close stops both pumps; the socket is closed by the write pump.
func (c *Connection) Close() {
	c.once.Do(func() { close(c.done) })
}

// readPump decodes inbound frames and hands them to handle one at a time, so
// events of a single connection are processed in arrival order.
func (c *Connection) readPump(cfg Config, handle func(protocol.Envelope)) {
	defer c.Close()
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.reply(protocol.MessageError{Error: "malformed frame", Code: "validation"})
			continue
		}
		if !c.limiter.Allow() {
			c.reply(protocol.MessageError{CorrelationToken: correlationToken(env), Error: "too many events", Code: "rate_limited"})
			continue
		}
		handle(env)
	}
}

func (c *Connection) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.ws.Close()
	}()
	for {
		select {
		case env := <-c.send:
			b, err := json.Marshal(env)
			if err != nil {
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) reply(e protocol.MessageError) {
	if env, err := protocol.New(protocol.EventMessageError, e); err == nil {
		c.Send(env)
	}
}

// correlationToken lets a rejected send be failed on the client; other events carry none.
func correlationToken(env protocol.Envelope) string {
	if env.Event != protocol.EventSendMessage {
		return ""
	}
	var p protocol.SendMessage
	if err := env.Decode(&p); err != nil {
		return ""
	}
	return p.CorrelationToken
}
