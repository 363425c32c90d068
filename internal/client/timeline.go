// Package client is the socket-side consumer: a local timeline that merges
// optimistic sends with authoritative broadcasts, and a reconnecting connection.
package client

import (
	"errors"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/khushnawaj/scriptSelf-sub001/internal/delivery"
	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

// ScanWindow bounds how far back from the newest entry a broadcast is matched
// against placeholders.
const ScanWindow = 50

var ErrUnknownToken = errors.New("no placeholder for correlation token")

type State string

const (
	StatePending   State = "pending"
	StateFailed    State = "failed"
	StateConfirmed State = "confirmed"
)

// Outcome says what Apply did with a broadcast.
type Outcome int

const (
	Duplicate Outcome = iota
	Replaced
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Replaced:
		return "replaced"
	}
	return "appended"
}

// Entry is one rendered row. Placeholders carry a token and no message id.
type Entry struct {
	Token   string
	State   State
	Message domain.Message
}

type Timeline struct {
	mu      sync.Mutex
	self    string
	entries []*Entry
	ids     map[string]struct{}
	settled map[string]*Entry // confirmed placeholders by their former token
}

func NewTimeline(self string) *Timeline {
	return &Timeline{self: self, ids: make(map[string]struct{}), settled: make(map[string]*Entry)}
}

// AddPending renders a placeholder and returns the correlation token to send with it.
func (t *Timeline) AddPending(text string, attachment *domain.Attachment, recipient string) string {
	token := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, &Entry{
		Token: token,
		State: StatePending,
		Message: domain.Message{
			Sender:     t.self,
			Recipient:  recipient,
			Content:    text,
			Attachment: attachment,
		},
	})
	return token
}

// Apply merges an authoritative message.
func (t *Timeline) Apply(m domain.Message) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := m.ID.Hex()
	if _, ok := t.ids[id]; ok {
		return Duplicate
	}
	t.ids[id] = struct{}{}

	if e := t.match(m); e != nil {
		t.settled[e.Token] = e
		e.Token = ""
		e.State = StateConfirmed
		e.Message = m
		e.Message.CorrelationToken = ""
		return Replaced
	}
	m.CorrelationToken = ""
	t.entries = append(t.entries, &Entry{State: StateConfirmed, Message: m})
	return Appended
}

func (t *Timeline) match(m domain.Message) *Entry {
	start := len(t.entries) - ScanWindow
	if start < 0 {
		start = 0
	}
	window := t.entries[start:]

	if m.CorrelationToken != "" {
		for _, e := range window {
			if e.Token == m.CorrelationToken && e.State != StateConfirmed {
				return e
			}
		}
	}
	if m.Sender != t.self {
		return nil
	}
	if m.Content != "" {
		for _, e := range window {
			if e.State == StatePending && e.Message.Content == m.Content {
				return e
			}
		}
	}
	if m.Content == "" && m.Attachment != nil {
		want := stripQuery(m.Attachment.URL)
		for _, e := range window {
			if e.State == StatePending && e.Message.Attachment != nil && stripQuery(e.Message.Attachment.URL) == want {
				return e
			}
		}
	}
	return nil
}

// Fail marks a placeholder as failed so it can be retried.
func (t *Timeline) Fail(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.placeholder(token)
	if e == nil {
		return ErrUnknownToken
	}
	e.State = StateFailed
	return nil
}

// Retry puts a failed placeholder back to pending and returns the payload to resend.
func (t *Timeline) Retry(token string) (protocol.SendMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.placeholder(token)
	if e == nil {
		return protocol.SendMessage{}, ErrUnknownToken
	}
	e.State = StatePending
	return protocol.SendMessage{
		Sender:           t.self,
		Message:          e.Message.Content,
		Recipient:        e.Message.Recipient,
		Attachment:       e.Message.Attachment,
		CorrelationToken: token,
	}, nil
}

func (t *Timeline) placeholder(token string) *Entry {
	for _, e := range t.entries {
		if e.Token == token && e.State != StateConfirmed {
			return e
		}
	}
	return nil
}

// ApplyStatus moves one message forward. Regressions are ignored.
func (t *Timeline) ApplyStatus(id string, status domain.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.State == StateConfirmed && e.Message.ID.Hex() == id {
			var changed bool
			e.Message.Status, changed = delivery.Advance(e.Message.Status, status)
			return changed
		}
	}
	return false
}

// ApplyRead marks everything this client sent to recipient as read.
func (t *Timeline) ApplyRead(recipient string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.State != StateConfirmed || e.Message.Sender != t.self || e.Message.Recipient != recipient {
			continue
		}
		var changed bool
		if e.Message.Status, changed = delivery.Advance(e.Message.Status, domain.StatusRead); changed {
			n++
		}
	}
	return n
}

// ApplyUpdate replaces the body of an already rendered message after an edit or delete.
func (t *Timeline) ApplyUpdate(m domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.State == StateConfirmed && e.Message.ID == m.ID {
			e.Message.Content = m.Content
			e.Message.Attachment = m.Attachment
			e.Message.IsEdited = m.IsEdited
			e.Message.IsDeleted = m.IsDeleted
			return true
		}
	}
	return false
}

// Lookup reports the outcome of a send: the confirmed entry, the failed placeholder, or false
// while it is still pending.
func (t *Timeline) Lookup(token string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.settled[token]; ok {
		return *e, true
	}
	if e := t.placeholder(token); e != nil && e.State == StateFailed {
		return *e, true
	}
	return Entry{}, false
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
