// Package broadcast announces stored changes to connection rooms. Callers
// invoke it only after the corresponding store write has succeeded.
package broadcast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
	"github.com/khushnawaj/scriptSelf-sub001/internal/ws"
)

// Rooms is the part of the connection registry the dispatcher needs.
type Rooms interface {
	// EmitRooms reports per target room how many connections accepted env.
	EmitRooms(env protocol.Envelope, rooms ...string) map[string]int
}

type DeliveryMarker interface {
	MarkDelivered(ctx context.Context, id, recipient string) (*domain.Message, bool, error)
}

// Publisher forwards lifecycle events to the outbound event bus.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// Lifecycle event names on the outbound bus.
const (
	MessageCreated      = "message.created"
	MessageEdited       = "message.edited"
	MessageDeleted      = "message.deleted"
	MessageDelivered    = "message.delivered"
	MessagesRead        = "messages.read"
	NotificationCreated = "notification.created"
)

type Event struct {
	Event        string               `json:"event"`
	Message      *domain.Message      `json:"message,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
	RecipientID  string               `json:"recipientId,omitempty"`
	SenderID     string               `json:"senderId,omitempty"`
	At           time.Time            `json:"at"`
}

type Dispatcher struct {
	rooms    Rooms
	delivery DeliveryMarker
	pub      Publisher
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

type Option func(*Dispatcher)

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.pub = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(rooms Rooms, delivery DeliveryMarker, log *zap.SugaredLogger, opts ...Option) *Dispatcher {
	d := &Dispatcher{rooms: rooms, delivery: delivery, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MessageCreated broadcasts a freshly stored message. A private message that
// at least one recipient connection accepted is advanced to delivered.
func (d *Dispatcher) MessageCreated(ctx context.Context, m *domain.Message) {
	if !m.Private() {
		d.emit(protocol.EventMessage, m, ws.GlobalRoom)
		d.publish(ctx, m.ID.Hex(), Event{Event: MessageCreated, Message: m, SenderID: m.Sender})
		return
	}

	accepted := d.emit(protocol.EventPrivateMessage, m, ws.UserRoom(m.Recipient), ws.UserRoom(m.Sender))
	d.publish(ctx, m.ID.Hex(), Event{Event: MessageCreated, Message: m, SenderID: m.Sender, RecipientID: m.Recipient})
	if accepted[ws.UserRoom(m.Recipient)] == 0 {
		return
	}
	updated, changed, err := d.delivery.MarkDelivered(ctx, m.ID.Hex(), m.Recipient)
	if err != nil {
		d.log.Warnw("mark delivered failed", "message_id", m.ID.Hex(), "error", err)
		return
	}
	if changed {
		d.StatusChanged(ctx, updated)
	}
}

// StatusChanged tells the sender's connections about a new delivery state.
func (d *Dispatcher) StatusChanged(ctx context.Context, m *domain.Message) {
	d.emit(protocol.EventStatusUpdate, protocol.StatusUpdate{MessageID: m.ID.Hex(), Status: m.Status}, ws.UserRoom(m.Sender))
	if m.Status == domain.StatusDelivered {
		d.publish(ctx, m.ID.Hex(), Event{Event: MessageDelivered, Message: m, SenderID: m.Sender, RecipientID: m.Recipient})
	}
}

// MessagesRead emits one event for a markAsRead call regardless of how many
// messages changed.
func (d *Dispatcher) MessagesRead(ctx context.Context, recipient, sender string) {
	d.emit(protocol.EventMessagesRead, protocol.MessagesRead{RecipientID: recipient}, ws.UserRoom(sender))
	d.publish(ctx, sender+":"+recipient, Event{Event: MessagesRead, SenderID: sender, RecipientID: recipient})
}

// MessageUpdated re-broadcasts an edited or tombstoned message to the rooms
// that received the original.
func (d *Dispatcher) MessageUpdated(ctx context.Context, m *domain.Message) {
	rooms := []string{ws.GlobalRoom}
	if m.Private() {
		rooms = []string{ws.UserRoom(m.Recipient), ws.UserRoom(m.Sender)}
	}
	d.emit(protocol.EventMessageUpdated, m, rooms...)
	name := MessageEdited
	if m.IsDeleted {
		name = MessageDeleted
	}
	d.publish(ctx, m.ID.Hex(), Event{Event: name, Message: m, SenderID: m.Sender, RecipientID: m.Recipient})
}

func (d *Dispatcher) NotificationCreated(ctx context.Context, n *domain.Notification) {
	d.emit(protocol.EventNotification, n, ws.UserRoom(n.Recipient))
	d.publish(ctx, n.ID.Hex(), Event{Event: NotificationCreated, Notification: n, SenderID: n.Sender, RecipientID: n.Recipient})
}

func (d *Dispatcher) emit(event string, v any, rooms ...string) map[string]int {
	env, err := protocol.New(event, v)
	if err != nil {
		d.log.Errorw("encode event", "event", event, "error", err)
		return nil
	}
	accepted := d.rooms.EmitRooms(env, rooms...)
	d.metrics.Broadcast(event)
	d.log.Debugw("emitted", "event", event, "rooms", rooms, "accepted", accepted)
	return accepted
}

func (d *Dispatcher) publish(ctx context.Context, key string, ev Event) {
	if d.pub == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := d.pub.Publish(ctx, key, ev); err != nil {
		d.log.Warnw("publish lifecycle event failed", "event", ev.Event, "key", key, "error", err)
	}
}
