package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

// Session drives a Timeline from a live connection.
type Session struct {
	self string
	conn *Conn
	tl   *Timeline
	log  *zap.SugaredLogger
}

func NewSession(self string, conn *Conn, tl *Timeline, log *zap.SugaredLogger) *Session {
	return &Session{self: self, conn: conn, tl: tl, log: log}
}

func (s *Session) Timeline() *Timeline { return s.tl }

func (s *Session) Join() error {
	return s.conn.Send(protocol.EventJoinPrivate, s.self)
}

// Send renders a placeholder and transmits it. A failed write leaves the
// placeholder failed; the token is returned either way so it can be retried.
func (s *Session) Send(text, recipient string, attachment *domain.Attachment) (string, error) {
	token := s.tl.AddPending(text, attachment, recipient)
	err := s.conn.Send(protocol.EventSendMessage, protocol.SendMessage{
		Sender:           s.self,
		Message:          text,
		Recipient:        recipient,
		Attachment:       attachment,
		CorrelationToken: token,
	})
	if err != nil {
		_ = s.tl.Fail(token)
	}
	return token, err
}

func (s *Session) Retry(token string) error {
	p, err := s.tl.Retry(token)
	if err != nil {
		return err
	}
	if err := s.conn.Send(protocol.EventSendMessage, p); err != nil {
		_ = s.tl.Fail(token)
		return err
	}
	return nil
}

// MarkRead tells the server this user has read everything from sender.
func (s *Session) MarkRead(sender string) error {
	return s.conn.Send(protocol.EventMarkAsRead, protocol.MarkAsRead{RecipientID: s.self, SenderID: sender})
}

// Run reads until ctx ends or the reconnect budget is spent, in which case
// it returns ErrConnectivity. notify, if set, sees every envelope after it
// has been applied.
func (s *Session) Run(ctx context.Context, notify func(protocol.Envelope)) error {
	for {
		env, err := s.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warnw("connection dropped, reconnecting", "error", err)
			if err := s.conn.Reconnect(ctx); err != nil {
				return err
			}
			if err := s.Join(); err != nil {
				return err
			}
			continue
		}
		if err := s.Handle(env); err != nil {
			s.log.Debugw("ignoring frame", "event", env.Event, "error", err)
		}
		if notify != nil {
			notify(env)
		}
	}
}

// Handle applies one server frame to the timeline.
func (s *Session) Handle(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventPrivateMessage, protocol.EventMessage:
		var m domain.Message
		if err := env.Decode(&m); err != nil {
			return err
		}
		s.tl.Apply(m)
		if m.Private() && m.Recipient == s.self && m.Status == domain.StatusSent {
			return s.conn.Send(protocol.EventMessageDelivered, protocol.MessageDelivered{MessageID: m.ID.Hex(), SenderID: m.Sender})
		}
	case protocol.EventStatusUpdate:
		var p protocol.StatusUpdate
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.tl.ApplyStatus(p.MessageID, p.Status)
	case protocol.EventMessagesRead:
		var p protocol.MessagesRead
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.tl.ApplyRead(p.RecipientID)
	case protocol.EventMessageUpdated:
		var m domain.Message
		if err := env.Decode(&m); err != nil {
			return err
		}
		s.tl.ApplyUpdate(m)
	case protocol.EventMessageError:
		var p protocol.MessageError
		if err := env.Decode(&p); err != nil {
			return err
		}
		if p.CorrelationToken != "" {
			if err := s.tl.Fail(p.CorrelationToken); err != nil && !errors.Is(err, ErrUnknownToken) {
				return err
			}
		}
		s.log.Warnw("server rejected event", "code", p.Code, "error", p.Error)
	}
	return nil
}
