package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

const eventTimeout = 5 * time.Second

type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	RatePerSecond  float64
	RateBurst      int
}

func (c *Config) defaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.WriteDeadline <= 0 {
		c.WriteDeadline = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
}

// Authenticator turns a bearer token into a verified actor.
type Authenticator interface {
	Validate(token string) (domain.Actor, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, d domain.Draft, correlationToken string) (*domain.Message, error)
	MarkDelivered(ctx context.Context, id, recipient string) (*domain.Message, bool, error)
	MarkAsRead(ctx context.Context, recipient, sender string) (int64, error)
}

// Dispatcher announces successful writes to connection rooms.
type Dispatcher interface {
	MessageCreated(ctx context.Context, m *domain.Message)
	StatusChanged(ctx context.Context, m *domain.Message)
	MessagesRead(ctx context.Context, recipient, sender string)
}

type Server struct {
	reg      *Registry
	auth     Authenticator
	messages MessageStore
	disp     Dispatcher
	cfg      Config
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	wg sync.WaitGroup
}

func NewServer(reg *Registry, auth Authenticator, messages MessageStore, disp Dispatcher, cfg Config, m *metrics.Metrics, log *zap.SugaredLogger) *Server {
	cfg.defaults()
	return &Server{reg: reg, auth: auth, messages: messages, disp: disp, cfg: cfg, metrics: m, log: log}
}

// Upgrade authenticates the handshake. The token comes from the "token" query
// parameter or a bearer Authorization header.
func (s *Server) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "error": "missing token", "code": "unauthenticated"})
		}
		actor, err := s.auth.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "error": "invalid token", "code": "unauthenticated"})
		}
		c.Locals("actor", actor)
		return c.Next()
	}
}

func (s *Server) Handler() fiber.Handler {
	return websocket.New(s.serve)
}

func (s *Server) serve(conn *websocket.Conn) {
	actor, ok := conn.Locals("actor").(domain.Actor)
	if !ok {
		_ = conn.Close()
		return
	}
	c := newConnection(conn, actor, s.cfg, s.metrics)
	// counted before it is visible to Shutdown's snapshot
	s.wg.Add(1)
	s.reg.Register(actor.ID, c)
	s.metrics.ConnectionOpened()
	s.log.Infow("connection registered", "conn_id", c.ID(), "user_id", actor.ID)

	writer := make(chan struct{})
	go func() {
		defer close(writer)
		c.writePump(s.cfg)
	}()
	c.readPump(s.cfg, func(env protocol.Envelope) {
		s.handle(actor, c, env)
	})
	<-writer

	s.reg.Deregister(c)
	s.metrics.ConnectionClosed()
	s.wg.Done()
	s.log.Infow("connection closed", "conn_id", c.ID(), "user_id", actor.ID)
}

// Shutdown closes every live connection and waits for their handlers to
// return or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, c := range s.reg.Snapshot() {
		c.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handle(actor domain.Actor, c Conn, env protocol.Envelope) {
	// not derived from the connection: a send whose store write started must complete
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case protocol.EventJoinPrivate:
		var identity string
		if err := env.Decode(&identity); err != nil || identity == "" {
			s.fail(c, "", domain.ErrValidation)
			return
		}
		if identity != actor.ID {
			s.fail(c, "", domain.ErrUnauthorized)
			return
		}
		s.reg.Join(UserRoom(identity), c)

	case protocol.EventSendMessage:
		var p protocol.SendMessage
		if err := env.Decode(&p); err != nil {
			s.fail(c, "", domain.ErrValidation)
			return
		}
		if p.Sender != "" && p.Sender != actor.ID {
			s.fail(c, p.CorrelationToken, domain.ErrUnauthorized)
			return
		}
		m, err := s.messages.CreateMessage(ctx, domain.Draft{
			Sender:     actor.ID,
			Recipient:  p.Recipient,
			Content:    p.Message,
			Attachment: p.Attachment,
		}, p.CorrelationToken)
		if err != nil {
			s.fail(c, p.CorrelationToken, err)
			return
		}
		s.disp.MessageCreated(ctx, m)

	case protocol.EventMessageDelivered:
		var p protocol.MessageDelivered
		if err := env.Decode(&p); err != nil {
			s.fail(c, "", domain.ErrValidation)
			return
		}
		m, changed, err := s.messages.MarkDelivered(ctx, p.MessageID, actor.ID)
		if err != nil {
			s.fail(c, "", err)
			return
		}
		if changed {
			s.disp.StatusChanged(ctx, m)
		}

	case protocol.EventMarkAsRead:
		var p protocol.MarkAsRead
		if err := env.Decode(&p); err != nil {
			s.fail(c, "", domain.ErrValidation)
			return
		}
		if p.RecipientID != "" && p.RecipientID != actor.ID {
			s.fail(c, "", domain.ErrUnauthorized)
			return
		}
		if _, err := s.messages.MarkAsRead(ctx, actor.ID, p.SenderID); err != nil {
			s.fail(c, "", err)
			return
		}
		s.disp.MessagesRead(ctx, actor.ID, p.SenderID)

	default:
		s.fail(c, "", fmt.Errorf("%w: unknown event %q", domain.ErrValidation, env.Event))
	}
}

func (s *Server) fail(c Conn, token string, err error) {
	code := domain.ErrorCode(err)
	msg := err.Error()
	if code == "internal" {
		s.log.Errorw("socket event failed", "conn_id", c.ID(), "user_id", c.UserID(), "error", err)
		msg = "internal error"
	}
	if env, e := protocol.New(protocol.EventMessageError, protocol.MessageError{CorrelationToken: token, Error: msg, Code: code}); e == nil {
		c.Send(env)
	}
}
