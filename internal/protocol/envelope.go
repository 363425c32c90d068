// Package protocol defines the socket wire format shared by the server and the client.
package protocol

import (
	"encoding/json"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

// Client → server events.
const (
	EventJoinPrivate      = "joinPrivate"
	EventSendMessage      = "sendMessage"
	EventMessageDelivered = "messageDelivered"
	EventMarkAsRead       = "markAsRead"
)

// Server → client events.
const (
	EventPrivateMessage = "privateMessage"
	EventMessage        = "message"
	EventStatusUpdate   = "statusUpdate"
	EventMessagesRead   = "messagesRead"
	EventNotification   = "notification"
	EventMessageUpdated = "messageUpdated"
	EventMessageError   = "messageError"
)

// Envelope is the standard wire format for socket frames.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New marshals v into an envelope.
func New(event string, v any) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: b}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type SendMessage struct {
	Sender           string             `json:"sender"`
	Message          string             `json:"message,omitempty"`
	Recipient        string             `json:"recipient,omitempty"`
	Attachment       *domain.Attachment `json:"attachment,omitempty"`
	CorrelationToken string             `json:"correlationToken,omitempty"`
}

type MessageDelivered struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

type MarkAsRead struct {
	RecipientID string `json:"recipientId"`
	SenderID    string `json:"senderId"`
}

type StatusUpdate struct {
	MessageID string        `json:"messageId"`
	Status    domain.Status `json:"status"`
}

type MessagesRead struct {
	RecipientID string `json:"recipientId"`
}

// MessageError tells the sending connection that an event was rejected.
type MessageError struct {
	CorrelationToken string `json:"correlationToken,omitempty"`
	Error            string `json:"error"`
	Code             string `json:"code"`
}
