package domain

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TombstoneText replaces the content of a deleted message.
const TombstoneText = "This message was deleted"

// HistoryLimit is the most recent window returned by a history fetch.
const HistoryLimit = 50

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentFile  AttachmentKind = "file"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentVideo, AttachmentFile:
		return true
	}
	return false
}

type Attachment struct {
	URL  string         `bson:"url" json:"url"`
	Name string         `bson:"name,omitempty" json:"name,omitempty"`
	Kind AttachmentKind `bson:"fileType" json:"fileType"`
}

func (a *Attachment) validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("%w: attachment url is required", ErrValidation)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown attachment type %q", ErrValidation, a.Kind)
	}
	return nil
}

// Message is a chat message. An empty Recipient means the global channel.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Sender     string             `bson:"sender" json:"sender"`
	Recipient  string             `bson:"recipient,omitempty" json:"recipient,omitempty"`
	Content    string             `bson:"message,omitempty" json:"message,omitempty"`
	Attachment *Attachment        `bson:"attachment,omitempty" json:"attachment,omitempty"`
	Status     Status             `bson:"status,omitempty" json:"status,omitempty"`
	IsEdited   bool               `bson:"isEdited" json:"isEdited"`
	IsDeleted  bool               `bson:"isDeleted" json:"isDeleted"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`

	// CorrelationToken is echoed back on the broadcast and never persisted.
	CorrelationToken string `bson:"-" json:"correlationToken,omitempty"`
}

// Body is either Active or Tombstoned.
type Body interface{ isBody() }

type Active struct {
	Text       string
	Attachment *Attachment
}

type Tombstoned struct{}

func (Active) isBody()     {}
func (Tombstoned) isBody() {}

func (m *Message) Body() Body {
	if m.IsDeleted {
		return Tombstoned{}
	}
	return Active{Text: m.Content, Attachment: m.Attachment}
}

func (m *Message) Private() bool { return m.Recipient != "" }

// Tombstone clears the body and keeps the identity.
func (m *Message) Tombstone() {
	m.IsDeleted = true
	m.Content = TombstoneText
	m.Attachment = nil
}

// Edit replaces the text content of an active message.
func (m *Message) Edit(content string) error {
	if m.IsDeleted {
		return ErrMessageDeleted
	}
	content = strings.TrimSpace(content)
	if content == "" && m.Attachment == nil {
		return fmt.Errorf("%w: message or attachment is required", ErrValidation)
	}
	m.Content = content
	m.IsEdited = true
	return nil
}

// Draft is the input of a send before it has an identity.
type Draft struct {
	Sender     string
	Recipient  string
	Content    string
	Attachment *Attachment
}

// NewMessage validates d and builds the record to persist.
func NewMessage(d Draft, now time.Time) (*Message, error) {
	if strings.TrimSpace(d.Sender) == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrValidation)
	}
	content := strings.TrimSpace(d.Content)
	if content == "" && d.Attachment == nil {
		return nil, fmt.Errorf("%w: message or attachment is required", ErrValidation)
	}
	if d.Attachment != nil {
		if err := d.Attachment.validate(); err != nil {
			return nil, err
		}
	}
	m := &Message{
		ID:         primitive.NewObjectID(),
		Sender:     d.Sender,
		Recipient:  d.Recipient,
		Content:    content,
		Attachment: d.Attachment,
		CreatedAt:  now.UTC(),
	}
	if m.Private() {
		m.Status = StatusSent
	}
	return m, nil
}

// ParseID rejects malformed identifiers before they reach a store.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	return oid, nil
}

// HistoryQuery selects a private conversation when UserB is set, otherwise the global channel.
type HistoryQuery struct {
	UserA string
	UserB string
	Limit int
}
