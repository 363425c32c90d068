package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

// GET /v1/messages?recipient=<peer>&limit=<n>. No recipient means the global channel.
func (s *Server) history(c *fiber.Ctx) error {
	actor := actorFrom(c)
	msgs, err := s.deps.Messages.History(c.UserContext(), actor.ID, c.Query("recipient"), c.QueryInt("limit", domain.HistoryLimit))
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, msgs)
}

type editReq struct {
	Message string `json:"message" validate:"max=4000"`
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var req editReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if err := bind(req); err != nil {
		return err
	}
	msg, err := s.deps.Messages.EditMessage(c.UserContext(), c.Params("id"), actorFrom(c), req.Message)
	if err != nil {
		return err
	}
	s.deps.Announcer.MessageUpdated(c.UserContext(), msg)
	return jsonSuccess(c, fiber.StatusOK, msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	msg, err := s.deps.Messages.DeleteMessage(c.UserContext(), c.Params("id"), actorFrom(c))
	if err != nil {
		return err
	}
	s.deps.Announcer.MessageUpdated(c.UserContext(), msg)
	return jsonSuccess(c, fiber.StatusOK, msg)
}

// POST /v1/attachments (multipart/form-data "file")
func (s *Server) uploadAttachment(c *fiber.Ctx) error {
	if s.deps.Uploader == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "attachments are disabled")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file missing")
	}
	if s.deps.MaxUploadBytes > 0 && fh.Size > s.deps.MaxUploadBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.deps.MaxUploadBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ct := fh.Header.Get(fiber.HeaderContentType)
	if ct == "" || ct == fiber.MIMEOctetStream {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		ct = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind upload: %w", err)
		}
	}

	att, err := s.deps.Uploader.Upload(c.UserContext(), fh.Filename, ct, f)
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusCreated, att)
}

func (s *Server) listNotifications(c *fiber.Ctx) error {
	items, err := s.deps.Notifications.List(c.UserContext(), actorFrom(c).ID)
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, items)
}

type createNotificationReq struct {
	Recipient string `json:"recipient" validate:"required"`
	Sender    string `json:"sender"`
	Type      string `json:"type" validate:"required,oneof=follow like comment system"`
	Message   string `json:"message" validate:"required,max=1000"`
	Link      string `json:"link" validate:"omitempty,url"`
}

// POST /v1/notifications. The sender defaults to the caller; only privileged
// callers may create on behalf of someone else.
func (s *Server) createNotification(c *fiber.Ctx) error {
	var req createNotificationReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if err := bind(req); err != nil {
		return err
	}
	d := domain.NotificationDraft(req)
	actor := actorFrom(c)
	if d.Sender == "" {
		d.Sender = actor.ID
	}
	if d.Sender != actor.ID && !actor.Privileged() {
		return fmt.Errorf("%w: cannot send notifications as another user", domain.ErrUnauthorized)
	}
	n, err := s.deps.Notifications.Create(c.UserContext(), d)
	if err != nil {
		return err
	}
	s.deps.Announcer.NotificationCreated(c.UserContext(), n)
	return jsonSuccess(c, fiber.StatusCreated, n)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	n, err := s.deps.Notifications.MarkRead(c.UserContext(), c.Params("id"), actorFrom(c))
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, n)
}

func (s *Server) markAllRead(c *fiber.Ctx) error {
	count, err := s.deps.Notifications.MarkAllRead(c.UserContext(), actorFrom(c))
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, fiber.Map{"updated": count})
}

func (s *Server) deleteNotification(c *fiber.Ctx) error {
	if err := s.deps.Notifications.Delete(c.UserContext(), c.Params("id"), actorFrom(c)); err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, fiber.Map{"deleted": c.Params("id")})
}
