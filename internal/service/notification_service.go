package service

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
)

// FeedSize is the number of notifications kept per recipient in the feed.
const FeedSize = 50

type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	Recent(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Notification, error)
	MarkRead(ctx context.Context, id primitive.ObjectID, recipient string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipient string) (int64, error)
	Delete(ctx context.Context, id primitive.ObjectID, recipient string) error
}

// FeedCache is a disposable per-recipient view of the newest notifications.
// Every method reports backend failures as domain.ErrCacheUnavailable.
type FeedCache interface {
	Push(ctx context.Context, recipient string, n *domain.Notification) error
	Load(ctx context.Context, recipient string) ([]*domain.Notification, error)
	Replace(ctx context.Context, recipient string, items []*domain.Notification) error
	Invalidate(ctx context.Context, recipient string) error
}

type NotificationService struct {
	repo    NotificationRepository
	cache   FeedCache
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// NewNotificationService builds the feed service. cache may be nil, in which
// case every read goes to the store.
func NewNotificationService(repo NotificationRepository, cache FeedCache, log *zap.SugaredLogger, opts ...Option) *NotificationService {
	o := buildOptions(opts)
	return &NotificationService{repo: repo, cache: cache, now: o.now, metrics: o.metrics, log: log}
}

func (s *NotificationService) Create(ctx context.Context, d domain.NotificationDraft) (*domain.Notification, error) {
	n, err := domain.NewNotification(d, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Push(ctx, n.Recipient, n); err != nil {
			s.cacheFailed("push", n.Recipient, err)
		}
	}
	return n, nil
}

// List returns the recipient's newest notifications, newest first.
func (s *NotificationService) List(ctx context.Context, recipient string) ([]*domain.Notification, error) {
	cacheUp := s.cache != nil
	if cacheUp {
		items, err := s.cache.Load(ctx, recipient)
		switch {
		case err != nil:
			s.cacheFailed("load", recipient, err)
			cacheUp = false
		case len(items) > 0:
			s.metrics.FeedRead("cache")
			return items, nil
		}
	}

	items, err := s.repo.Recent(ctx, recipient, FeedSize)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	s.metrics.FeedRead("store")
	if cacheUp && len(items) > 0 {
		if err := s.cache.Replace(ctx, recipient, items); err != nil {
			s.cacheFailed("rebuild", recipient, err)
		}
	}
	return items, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string, actor domain.Actor) (*domain.Notification, error) {
	oid, err := s.owned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.MarkRead(ctx, oid, actor.ID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, actor.ID)
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, actor.ID)
	return count, nil
}

func (s *NotificationService) Delete(ctx context.Context, id string, actor domain.Actor) error {
	oid, err := s.owned(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, oid, actor.ID); err != nil {
		return err
	}
	s.invalidate(ctx, actor.ID)
	return nil
}

func (s *NotificationService) owned(ctx context.Context, id string, actor domain.Actor) (primitive.ObjectID, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return oid, err
	}
	n, err := s.repo.FindByID(ctx, oid)
	if err != nil {
		return oid, err
	}
	if n.Recipient != actor.ID {
		return oid, fmt.Errorf("%w: notification belongs to another user", domain.ErrUnauthorized)
	}
	return oid, nil
}

func (s *NotificationService) invalidate(ctx context.Context, recipient string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, recipient); err != nil {
		s.cacheFailed("invalidate", recipient, err)
	}
}

func (s *NotificationService) cacheFailed(op, recipient string, err error) {
	s.metrics.CacheError()
	s.log.Debugw("notification cache unavailable, using store", "op", op, "recipient", recipient, "error", err)
}
