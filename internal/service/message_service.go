package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
)

// EditWindow bounds edits and deletes by non-privileged senders.
const EditWindow = 15 * time.Minute

type MessageRepository interface {
	Insert(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error)
	SaveBody(ctx context.Context, m *domain.Message) error
	History(ctx context.Context, q domain.HistoryQuery) ([]*domain.Message, error)
	AdvanceStatus(ctx context.Context, id primitive.ObjectID, recipient string, to domain.Status) (*domain.Message, bool, error)
	MarkConversationRead(ctx context.Context, recipient, sender string) (int64, error)
}

type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records feed and transition counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type MessageService struct {
	repo    MessageRepository
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

func NewMessageService(repo MessageRepository, log *zap.SugaredLogger, opts ...Option) *MessageService {
	o := buildOptions(opts)
	return &MessageService{repo: repo, now: o.now, metrics: o.metrics, log: log}
}

// CreateMessage persists a new message. The correlation token is carried on
// the returned record for the broadcast only.
func (s *MessageService) CreateMessage(ctx context.Context, d domain.Draft, correlationToken string) (*domain.Message, error) {
	m, err := domain.NewMessage(d, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m.CorrelationToken = correlationToken
	return m, nil
}

func (s *MessageService) EditMessage(ctx context.Context, id string, actor domain.Actor, content string) (*domain.Message, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != m.Sender {
		return nil, fmt.Errorf("%w: only the sender may edit this message", domain.ErrUnauthorized)
	}
	if err := s.checkWindow(m, actor); err != nil {
		return nil, err
	}
	if err := m.Edit(content); err != nil {
		return nil, err
	}
	if err := s.repo.SaveBody(ctx, m); err != nil {
		return nil, fmt.Errorf("save edit: %w", err)
	}
	return m, nil
}

// DeleteMessage tombstones the message. Privileged actors may delete any
// message at any age.
func (s *MessageService) DeleteMessage(ctx context.Context, id string, actor domain.Actor) (*domain.Message, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != m.Sender && !actor.Privileged() {
		return nil, fmt.Errorf("%w: only the sender or a moderator may delete this message", domain.ErrUnauthorized)
	}
	if err := s.checkWindow(m, actor); err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return m, nil
	}
	m.Tombstone()
	if err := s.repo.SaveBody(ctx, m); err != nil {
		if errors.Is(err, domain.ErrMessageDeleted) {
			// a concurrent delete won; return its tombstone
			return s.repo.FindByID(ctx, m.ID)
		}
		return nil, fmt.Errorf("save tombstone: %w", err)
	}
	if actor.ID != m.Sender {
		s.log.Infow("message deleted by privileged actor", "message_id", m.ID.Hex(), "actor", actor.ID, "role", actor.Role)
	}
	return m, nil
}

// History returns the most recent messages of a conversation (or the global
// channel when peer is empty) in ascending creation order.
func (s *MessageService) History(ctx context.Context, user, peer string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > domain.HistoryLimit {
		limit = domain.HistoryLimit
	}
	return s.repo.History(ctx, domain.HistoryQuery{UserA: user, UserB: peer, Limit: limit})
}

// MarkDelivered moves a private message addressed to recipient from sent to
// delivered. changed is false when the message was already delivered or read.
func (s *MessageService) MarkDelivered(ctx context.Context, id, recipient string) (*domain.Message, bool, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return nil, false, err
	}
	m, changed, err := s.repo.AdvanceStatus(ctx, oid, recipient, domain.StatusDelivered)
	if changed {
		s.metrics.Transition(string(domain.StatusDelivered), 1)
	}
	return m, changed, err
}

// MarkAsRead marks every message from sender to recipient as read and returns
// how many changed. Repeated calls are no-ops.
func (s *MessageService) MarkAsRead(ctx context.Context, recipient, sender string) (int64, error) {
	if recipient == "" || sender == "" {
		return 0, fmt.Errorf("%w: recipientId and senderId are required", domain.ErrValidation)
	}
	n, err := s.repo.MarkConversationRead(ctx, recipient, sender)
	if err != nil {
		return 0, err
	}
	s.metrics.Transition(string(domain.StatusRead), n)
	return n, nil
}

func (s *MessageService) load(ctx context.Context, id string) (*domain.Message, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, oid)
}

func (s *MessageService) checkWindow(m *domain.Message, actor domain.Actor) error {
	if actor.Privileged() {
		return nil
	}
	if s.now().Sub(m.CreatedAt) >= EditWindow {
		return fmt.Errorf("%w: messages can only be changed within %s", domain.ErrWindowExpired, EditWindow)
	}
	return nil
}
