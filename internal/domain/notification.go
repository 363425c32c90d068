package domain

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationSystem  NotificationType = "system"
)

func ParseNotificationType(s string) (NotificationType, error) {
	switch t := NotificationType(strings.ToLower(strings.TrimSpace(s))); t {
	case NotificationFollow, NotificationLike, NotificationComment, NotificationSystem:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown notification type %q", ErrValidation, s)
}

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Recipient string             `bson:"recipient" json:"recipient"`
	Sender    string             `bson:"sender" json:"sender"`
	Type      NotificationType   `bson:"type" json:"type"`
	Message   string             `bson:"message" json:"message"`
	Link      string             `bson:"link,omitempty" json:"link,omitempty"`
	IsRead    bool               `bson:"isRead" json:"isRead"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type NotificationDraft struct {
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
}

func NewNotification(d NotificationDraft, now time.Time) (*Notification, error) {
	if strings.TrimSpace(d.Recipient) == "" || strings.TrimSpace(d.Sender) == "" {
		return nil, fmt.Errorf("%w: recipient and sender are required", ErrValidation)
	}
	t, err := ParseNotificationType(d.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	return &Notification{
		ID:        primitive.NewObjectID(),
		Recipient: d.Recipient,
		Sender:    d.Sender,
		Type:      t,
		Message:   strings.TrimSpace(d.Message),
		Link:      d.Link,
		CreatedAt: now.UTC(),
	}, nil
}
