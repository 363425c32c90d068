package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type messageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error)
	SaveBody(ctx context.Context, m *domain.Message) error
	History(ctx context.Context, q domain.HistoryQuery) ([]*domain.Message, error)
	AdvanceStatus(ctx context.Context, id primitive.ObjectID, recipient string, to domain.Status) (*domain.Message, bool, error)
	MarkConversationRead(ctx context.Context, recipient, sender string) (int64, error)
}

type notificationStore interface {
	Insert(ctx context.Context, n *domain.Notification) error
	Recent(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Notification, error)
	MarkRead(ctx context.Context, id primitive.ObjectID, recipient string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipient string) (int64, error)
	Delete(ctx context.Context, id primitive.ObjectID, recipient string) error
}

func newMsg(t *testing.T, sender, recipient, text string, at time.Time) *domain.Message {
	t.Helper()
	m, err := domain.NewMessage(domain.Draft{Sender: sender, Recipient: recipient, Content: text}, at)
	require.NoError(t, err)
	return m
}

func testMessageStore(t *testing.T, s messageStore) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	for i := 0; i < 55; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = "bob", "alice"
		}
		require.NoError(t, s.Insert(ctx, newMsg(t, from, to, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, s.Insert(ctx, newMsg(t, "alice", "carol", "other", base)))
	require.NoError(t, s.Insert(ctx, newMsg(t, "alice", "", "global", base)))

	hist, err := s.History(ctx, domain.HistoryQuery{UserA: "bob", UserB: "alice", Limit: domain.HistoryLimit})
	require.NoError(t, err)
	require.Len(t, hist, 50)
	assert.Equal(t, "m5", hist[0].Content)
	assert.Equal(t, "m54", hist[49].Content)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].CreatedAt.Before(hist[i-1].CreatedAt))
	}

	global, err := s.History(ctx, domain.HistoryQuery{UserA: "bob", Limit: domain.HistoryLimit})
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "global", global[0].Content)
	assert.Empty(t, global[0].Status)

	m := hist[49]
	got, changed, err := s.AdvanceStatus(ctx, m.ID, m.Recipient, domain.StatusRead)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusRead, got.Status)

	got, changed, err = s.AdvanceStatus(ctx, m.ID, m.Recipient, domain.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.StatusRead, got.Status)

	_, _, err = s.AdvanceStatus(ctx, m.ID, "mallory", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := s.MarkConversationRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(27), n) // 28 alice->bob messages, one already read
	n, err = s.MarkConversationRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	first := hist[0]
	first.Tombstone()
	require.NoError(t, s.SaveBody(ctx, first))
	stored, err := s.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, domain.TombstoneText, stored.Content)

	// a copy loaded before the delete cannot revive the message
	stale := *hist[1]
	stale.ID = first.ID
	stale.Content, stale.IsEdited = "edited", true
	assert.ErrorIs(t, s.SaveBody(ctx, &stale), domain.ErrMessageDeleted)
	stored, err = s.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, domain.TombstoneText, stored.Content)

	missing := *hist[1]
	missing.ID = primitive.NewObjectID()
	assert.ErrorIs(t, s.SaveBody(ctx, &missing), domain.ErrNotFound)

	_, err = s.FindByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	testConcurrentReadAndDelivery(t, s)
}

// delivered acks racing a conversation read must never pull a read message
// back, and each message is counted read exactly once
func testConcurrentReadAndDelivery(t *testing.T, s messageStore) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	const total = 20
	ids := make([]primitive.ObjectID, 0, total)
	for i := 0; i < total; i++ {
		m := newMsg(t, "ann", "ben", fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Insert(ctx, m))
		ids = append(ids, m.ID)
	}

	var (
		wg        sync.WaitGroup
		read      atomic.Int64
		delivered atomic.Int64
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id primitive.ObjectID) {
			defer wg.Done()
			_, changed, err := s.AdvanceStatus(ctx, id, "ben", domain.StatusDelivered)
			assert.NoError(t, err)
			if changed {
				delivered.Add(1)
			}
		}(id)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.MarkConversationRead(ctx, "ben", "ann")
			assert.NoError(t, err)
			read.Add(n)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, delivered.Load(), int64(total))
	assert.Equal(t, int64(total), read.Load())
	hist, err := s.History(ctx, domain.HistoryQuery{UserA: "ben", UserB: "ann", Limit: domain.HistoryLimit})
	require.NoError(t, err)
	require.Len(t, hist, total)
	for _, m := range hist {
		assert.Equal(t, domain.StatusRead, m.Status, m.Content)
	}
}

func testNotificationStore(t *testing.T, s notificationStore) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	var last *domain.Notification
	for i := 0; i < 3; i++ {
		n, err := domain.NewNotification(domain.NotificationDraft{
			Recipient: "bob", Sender: "alice", Type: "follow", Message: fmt.Sprintf("n%d", i),
		}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Insert(ctx, n))
		last = n
	}

	recent, err := s.Recent(ctx, "bob", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "n2", recent[0].Message)
	assert.Equal(t, "n1", recent[1].Message)

	_, err = s.MarkRead(ctx, last.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	read, err := s.MarkRead(ctx, last.ID, "bob")
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	count, err := s.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, s.Delete(ctx, last.ID, "bob"))
	_, err = s.FindByID(ctx, last.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, last.ID, "bob"), domain.ErrNotFound)
}

func TestMemoryMessages(t *testing.T) {
	testMessageStore(t, NewMemoryMessages())
}

func TestMemoryNotifications(t *testing.T) {
	testNotificationStore(t, NewMemoryNotifications())
}

func TestMongoRepositories(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping mongo integration test")
	}
	ctx := context.Background()
	client, err := NewMongoClient(ctx, uri)
	require.NoError(t, err)
	db := client.Database(fmt.Sprintf("realtime_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	msgs, err := NewMessageRepository(ctx, db)
	require.NoError(t, err)
	testMessageStore(t, msgs)

	notes, err := NewNotificationRepository(ctx, db)
	require.NoError(t, err)
	testNotificationStore(t, notes)
}
