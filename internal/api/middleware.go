package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

const actorKey = "actor"

// Authenticator turns a bearer token into a verified actor.
type Authenticator interface {
	Validate(token string) (domain.Actor, error)
}

func bearerAuth(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get(fiber.HeaderAuthorization)
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing auth")
		}
		actor, err := a.Validate(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(actorKey, actor)
		return c.Next()
	}
}

func actorFrom(c *fiber.Ctx) domain.Actor {
	a, _ := c.Locals(actorKey).(domain.Actor)
	return a
}

func requestLogger(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status, _, _ = statusFor(err)
		}
		log.Infow("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
			"request_id", c.Locals(requestid.ConfigDefault.ContextKey),
		)
		return err
	}
}

func errorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code, msg := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			log.Errorw("request failed", "path", c.Path(), "err", err)
		}
		return jsonError(c, status, code, msg)
	}
}
