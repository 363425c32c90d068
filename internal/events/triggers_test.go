package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type flakyCreator struct {
	failures int
	calls    int
}

func (f *flakyCreator) Create(_ context.Context, d domain.NotificationDraft) (*domain.Notification, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("insert notification: timeout")
	}
	return domain.NewNotification(d, time.Now())
}

type announcer struct{ got []*domain.Notification }

func (a *announcer) NotificationCreated(_ context.Context, n *domain.Notification) {
	a.got = append(a.got, n)
}

type dlq struct{ got []any }

func (d *dlq) Publish(_ context.Context, _ string, v any) error {
	d.got = append(d.got, v)
	return nil
}

func trigger(t *testing.T, d domain.NotificationDraft) []byte {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return b
}

func TestTriggerRetriesTransientFailures(t *testing.T) {
	c := &flakyCreator{failures: 2}
	a, q := &announcer{}, &dlq{}
	h := NewTriggerHandler(c, a, q, 3, time.Millisecond, zap.NewNop().Sugar())

	err := h.Handle(context.Background(), trigger(t, domain.NotificationDraft{Recipient: "bob", Sender: "alice", Type: "follow", Message: "alice followed you"}))
	require.NoError(t, err)
	assert.Equal(t, 3, c.calls)
	require.Len(t, a.got, 1)
	assert.Equal(t, domain.NotificationFollow, a.got[0].Type)
	assert.Empty(t, q.got)
}

func TestTriggerValidationGoesToDeadLetters(t *testing.T) {
	c := &flakyCreator{}
	a, q := &announcer{}, &dlq{}
	h := NewTriggerHandler(c, a, q, 3, time.Millisecond, zap.NewNop().Sugar())

	err := h.Handle(context.Background(), trigger(t, domain.NotificationDraft{Recipient: "bob", Sender: "alice", Type: "poke", Message: "x"}))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, c.calls)
	assert.Empty(t, a.got)
	assert.Len(t, q.got, 1)

	err = h.Handle(context.Background(), []byte("{broken"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, q.got, 2)
}

func TestTriggerGivesUpAfterRetries(t *testing.T) {
	c := &flakyCreator{failures: 100}
	a, q := &announcer{}, &dlq{}
	h := NewTriggerHandler(c, a, q, 2, time.Millisecond, zap.NewNop().Sugar())

	err := h.Handle(context.Background(), trigger(t, domain.NotificationDraft{Recipient: "bob", Sender: "alice", Type: "like", Message: "x"}))
	assert.Error(t, err)
	assert.Equal(t, 3, c.calls)
	assert.Empty(t, a.got)
	assert.Len(t, q.got, 1)
}
