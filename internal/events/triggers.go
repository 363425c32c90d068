package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type NotificationCreator interface {
	Create(ctx context.Context, d domain.NotificationDraft) (*domain.Notification, error)
}

type NotificationAnnouncer interface {
	NotificationCreated(ctx context.Context, n *domain.Notification)
}

// DeadLetters receives triggers that could not be processed.
type DeadLetters interface {
	Publish(ctx context.Context, key string, v any) error
}

// TriggerHandler turns notification triggers published by other platform
// services (follows, likes, comments) into stored and announced notifications.
type TriggerHandler struct {
	creator    NotificationCreator
	announcer  NotificationAnnouncer
	dlq        DeadLetters
	maxRetries uint64
	interval   time.Duration
	log        *zap.SugaredLogger
}

func NewTriggerHandler(c NotificationCreator, a NotificationAnnouncer, dlq DeadLetters, maxRetries int, interval time.Duration, log *zap.SugaredLogger) *TriggerHandler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &TriggerHandler{creator: c, announcer: a, dlq: dlq, maxRetries: uint64(maxRetries), interval: interval, log: log}
}

func (h *TriggerHandler) Handle(ctx context.Context, raw []byte) error {
	var d domain.NotificationDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return h.deadLetter(ctx, raw, fmt.Errorf("%w: decode trigger: %v", domain.ErrValidation, err))
	}

	var n *domain.Notification
	op := func() error {
		var err error
		n, err = h.creator.Create(ctx, d)
		if errors.Is(err, domain.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.interval
	notify := func(err error, wait time.Duration) {
		h.log.Warnw("notification trigger failed, retrying", "recipient", d.Recipient, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, h.maxRetries), ctx), notify); err != nil {
		return h.deadLetter(ctx, raw, err)
	}
	h.announcer.NotificationCreated(ctx, n)
	return nil
}

type deadLetter struct {
	Trigger json.RawMessage `json:"trigger"`
	Error   string          `json:"error"`
	At      time.Time       `json:"at"`
}

func (h *TriggerHandler) deadLetter(ctx context.Context, raw []byte, cause error) error {
	if h.dlq == nil {
		return cause
	}
	payload := deadLetter{Error: cause.Error(), At: time.Now().UTC()}
	if json.Valid(raw) {
		payload.Trigger = raw
	} else {
		payload.Trigger, _ = json.Marshal(string(raw))
	}
	if err := h.dlq.Publish(ctx, "", payload); err != nil {
		h.log.Errorw("dead letter publish failed", "error", err)
	}
	return cause
}
