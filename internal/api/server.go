package api

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
	"github.com/khushnawaj/scriptSelf-sub001/internal/ws"
)

type Messages interface {
	EditMessage(ctx context.Context, id string, actor domain.Actor, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id string, actor domain.Actor) (*domain.Message, error)
	History(ctx context.Context, user, peer string, limit int) ([]*domain.Message, error)
}

type Notifications interface {
	Create(ctx context.Context, d domain.NotificationDraft) (*domain.Notification, error)
	List(ctx context.Context, recipient string) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id string, actor domain.Actor) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error)
	Delete(ctx context.Context, id string, actor domain.Actor) error
}

// Uploader stores an attachment and returns its public reference.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (domain.Attachment, error)
}

// Announcer pushes REST-originated changes to live connections.
type Announcer interface {
	MessageUpdated(ctx context.Context, m *domain.Message)
	NotificationCreated(ctx context.Context, n *domain.Notification)
}

type Deps struct {
	Auth          Authenticator
	Messages      Messages
	Notifications Notifications
	Announcer     Announcer
	Uploader      Uploader   // nil disables POST /v1/attachments
	Socket        *ws.Server // nil disables /ws
	Metrics       *metrics.Metrics
	Log           *zap.SugaredLogger

	BodyLimit      int
	MaxUploadBytes int64
}

type Server struct {
	deps Deps
}

func NewServer(d Deps) *fiber.App {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	cfg := fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Log),
	}
	if d.BodyLimit > 0 {
		cfg.BodyLimit = d.BodyLimit
	}
	app := fiber.New(cfg)
	s := &Server{deps: d}

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(d.Log))

	app.Get("/healthz", func(c *fiber.Ctx) error { return jsonSuccess(c, fiber.StatusOK, "healthy") })
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}
	if d.Socket != nil {
		app.Use("/ws", d.Socket.Upgrade())
		app.Get("/ws", d.Socket.Handler())
	}

	v1 := app.Group("/v1", bearerAuth(d.Auth))

	v1.Get("/messages", s.history)
	v1.Patch("/messages/:id", s.editMessage)
	v1.Delete("/messages/:id", s.deleteMessage)
	v1.Post("/attachments", s.uploadAttachment)

	v1.Get("/notifications", s.listNotifications)
	v1.Post("/notifications", s.createNotification)
	v1.Patch("/notifications/read", s.markAllRead)
	v1.Patch("/notifications/:id/read", s.markRead)
	v1.Delete("/notifications/:id", s.deleteNotification)

	return app
}
