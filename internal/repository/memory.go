package repository

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khushnawaj/scriptSelf-sub001/internal/delivery"
	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

// MemoryMessages is a process-local message store for development runs and tests.
type MemoryMessages struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.Message
	all  []*domain.Message // insertion order
}

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{byID: make(map[primitive.ObjectID]*domain.Message)}
}

func (s *MemoryMessages) Insert(_ context.Context, m *domain.Message) error {
	cp := copyMessage(m)
	cp.CorrelationToken = ""
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cp.ID] = cp
	s.all = append(s.all, cp)
	return nil
}

func (s *MemoryMessages) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *MemoryMessages) SaveBody(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.IsDeleted {
		return domain.ErrMessageDeleted
	}
	cur.Content = m.Content
	cur.IsEdited = m.IsEdited
	cur.IsDeleted = m.IsDeleted
	cur.Attachment = copyAttachment(m.Attachment)
	return nil
}

func (s *MemoryMessages) History(_ context.Context, q domain.HistoryQuery) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Message
	for _, m := range s.all {
		if q.UserB != "" {
			if (m.Sender == q.UserA && m.Recipient == q.UserB) || (m.Sender == q.UserB && m.Recipient == q.UserA) {
				matched = append(matched, m)
			}
		} else if m.Recipient == "" {
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	out := make([]*domain.Message, 0, len(matched))
	for _, m := range matched {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *MemoryMessages) AdvanceStatus(_ context.Context, id primitive.ObjectID, recipient string, to domain.Status) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.Recipient != recipient {
		return nil, false, domain.ErrNotFound
	}
	next, changed := delivery.Advance(m.Status, to)
	m.Status = next
	return copyMessage(m), changed, nil
}

func (s *MemoryMessages) MarkConversationRead(_ context.Context, recipient, sender string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.all {
		if m.Sender != sender || m.Recipient != recipient {
			continue
		}
		var changed bool
		if m.Status, changed = delivery.Advance(m.Status, domain.StatusRead); changed {
			n++
		}
	}
	return n, nil
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Attachment = copyAttachment(m.Attachment)
	return &cp
}

func copyAttachment(a *domain.Attachment) *domain.Attachment {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// MemoryNotifications is the notification counterpart of MemoryMessages.
type MemoryNotifications struct {
	mu    sync.RWMutex
	items []*domain.Notification
}

func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{}
}

func (s *MemoryNotifications) Insert(_ context.Context, n *domain.Notification) error {
	cp := *n
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, &cp)
	return nil
}

func (s *MemoryNotifications) Recent(_ context.Context, recipient string, limit int) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Notification{}
	for i := len(s.items) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if n := s.items[i]; n.Recipient == recipient {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryNotifications) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, n := s.find(id); n != nil {
		cp := *n
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryNotifications) MarkRead(_ context.Context, id primitive.ObjectID, recipient string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, n := s.find(id)
	if n == nil || n.Recipient != recipient {
		return nil, domain.ErrNotFound
	}
	n.IsRead = true
	cp := *n
	return &cp, nil
}

func (s *MemoryNotifications) MarkAllRead(_ context.Context, recipient string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.items {
		if n.Recipient == recipient && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (s *MemoryNotifications) Delete(_ context.Context, id primitive.ObjectID, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, n := s.find(id)
	if n == nil || n.Recipient != recipient {
		return domain.ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *MemoryNotifications) find(id primitive.ObjectID) (int, *domain.Notification) {
	for i, n := range s.items {
		if n.ID == id {
			return i, n
		}
	}
	return -1, nil
}
