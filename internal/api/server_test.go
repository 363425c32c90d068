package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
	"github.com/khushnawaj/scriptSelf-sub001/internal/metrics"
	"github.com/khushnawaj/scriptSelf-sub001/internal/repository"
	"github.com/khushnawaj/scriptSelf-sub001/internal/service"
)

// tokens are the actor ids themselves; "mod" carries the moderator role.
type staticAuth struct{}

func (staticAuth) Validate(token string) (domain.Actor, error) {
	switch token {
	case "":
		return domain.Actor{}, errors.New("empty")
	case "mod":
		return domain.Actor{ID: token, Role: domain.RoleModerator}, nil
	}
	return domain.Actor{ID: token, Role: domain.RoleUser}, nil
}

type recordingAnnouncer struct {
	mu            sync.Mutex
	updated       []*domain.Message
	notifications []*domain.Notification
}

func (r *recordingAnnouncer) MessageUpdated(_ context.Context, m *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, m)
}

func (r *recordingAnnouncer) NotificationCreated(_ context.Context, n *domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

type memoryUploader struct {
	name, contentType string
	size              int
}

func (u *memoryUploader) Upload(_ context.Context, filename, contentType string, body io.Reader) (domain.Attachment, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return domain.Attachment{}, err
	}
	u.name, u.contentType, u.size = filename, contentType, len(b)
	return domain.Attachment{URL: "https://cdn.example/" + filename, Name: filename, Kind: domain.AttachmentImage}, nil
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Code   string          `json:"code"`
}

type fixture struct {
	app      *fiber.App
	now      time.Time
	messages *service.MessageService
	notifs   *service.NotificationService
	ann      *recordingAnnouncer
	uploader *memoryUploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	f := &fixture{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), ann: &recordingAnnouncer{}, uploader: &memoryUploader{}}
	clock := service.WithClock(func() time.Time { return f.now })
	f.messages = service.NewMessageService(repository.NewMemoryMessages(), log, clock)
	f.notifs = service.NewNotificationService(repository.NewMemoryNotifications(), nil, log, clock)
	f.app = NewServer(Deps{
		Auth:           staticAuth{},
		Messages:       f.messages,
		Notifications:  f.notifs,
		Announcer:      f.ann,
		Uploader:       f.uploader,
		Metrics:        metrics.New(),
		Log:            log,
		MaxUploadBytes: 1 << 20,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return f.send(t, req)
}

func (f *fixture) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (f *fixture) seed(t *testing.T, from, to, text string) *domain.Message {
	t.Helper()
	m, err := f.messages.CreateMessage(context.Background(), domain.Draft{Sender: from, Recipient: to, Content: text}, "")
	require.NoError(t, err)
	return m
}

func TestRequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	status, env := f.do(t, http.MethodGet, "/v1/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "unauthenticated", env.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	status, env := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", env.Status)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ws_active_connections")
}

func TestHistoryIsConversationScoped(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "alice", "bob", "one")
	f.seed(t, "bob", "alice", "two")
	f.seed(t, "alice", "carol", "elsewhere")
	f.seed(t, "alice", "", "global")

	status, env := f.do(t, http.MethodGet, "/v1/messages?recipient=bob", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)

	_, env = f.do(t, http.MethodGet, "/v1/messages", "bob", nil)
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "global", msgs[0].Content)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, "alice", "bob", "helo")
	path := "/v1/messages/" + m.ID.Hex()

	status, env := f.do(t, http.MethodPatch, path, "bob", editReq{Message: "hijack"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized", env.Code)

	status, env = f.do(t, http.MethodPatch, path, "alice", editReq{Message: "hello"})
	require.Equal(t, http.StatusOK, status)
	var got domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "hello", got.Content)
	assert.True(t, got.IsEdited)
	require.Len(t, f.ann.updated, 1)

	f.now = f.now.Add(service.EditWindow)
	status, env = f.do(t, http.MethodPatch, path, "alice", editReq{Message: "late"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "window_expired", env.Code)
}

func TestEditMessageValidation(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, "alice", "bob", "text")

	status, env := f.do(t, http.MethodPatch, "/v1/messages/"+m.ID.Hex(), "alice", editReq{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", env.Code)

	status, env = f.do(t, http.MethodPatch, "/v1/messages/not-an-id", "alice", editReq{Message: "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Code)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, "alice", "bob", "oops")
	f.now = f.now.Add(time.Hour)

	status, env := f.do(t, http.MethodDelete, "/v1/messages/"+m.ID.Hex(), "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "window_expired", env.Code)

	status, env = f.do(t, http.MethodDelete, "/v1/messages/"+m.ID.Hex(), "mod", nil)
	require.Equal(t, http.StatusOK, status)
	var got domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.IsDeleted)
	assert.Equal(t, domain.TombstoneText, got.Content)
	assert.Nil(t, got.Attachment)
	require.Len(t, f.ann.updated, 1)
}

func TestNotificationLifecycle(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, http.MethodPost, "/v1/notifications", "alice",
		domain.NotificationDraft{Recipient: "bob", Type: "follow", Message: "alice followed you"})
	require.Equal(t, http.StatusCreated, status)
	var created domain.Notification
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "alice", created.Sender)
	require.Len(t, f.ann.notifications, 1)

	status, env = f.do(t, http.MethodPost, "/v1/notifications", "alice",
		domain.NotificationDraft{Recipient: "bob", Sender: "carol", Type: "like", Message: "spoof"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized", env.Code)

	_, env = f.do(t, http.MethodGet, "/v1/notifications", "bob", nil)
	var feed []domain.Notification
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	require.Len(t, feed, 1)
	assert.False(t, feed[0].IsRead)

	status, env = f.do(t, http.MethodPatch, "/v1/notifications/"+created.ID.Hex()+"/read", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "unauthorized", env.Code)

	status, _ = f.do(t, http.MethodPatch, "/v1/notifications/"+created.ID.Hex()+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, status)

	_, env = f.do(t, http.MethodGet, "/v1/notifications", "bob", nil)
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	assert.True(t, feed[0].IsRead)

	status, _ = f.do(t, http.MethodDelete, "/v1/notifications/"+created.ID.Hex(), "bob", nil)
	require.Equal(t, http.StatusOK, status)
	status, env = f.do(t, http.MethodDelete, "/v1/notifications/"+created.ID.Hex(), "bob", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		status, _ := f.do(t, http.MethodPost, "/v1/notifications", "alice",
			domain.NotificationDraft{Recipient: "bob", Type: "like", Message: "liked"})
		require.Equal(t, http.StatusCreated, status)
	}
	status, env := f.do(t, http.MethodPatch, "/v1/notifications/read", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":3}`, string(env.Data))
}

func multipartUpload(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer alice")
	return req
}

func TestUploadAttachment(t *testing.T) {
	f := newFixture(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	status, env := f.send(t, multipartUpload(t, "cat.png", "", png))
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "image/png", f.uploader.contentType)
	assert.Equal(t, len(png), f.uploader.size)

	var att domain.Attachment
	require.NoError(t, json.Unmarshal(env.Data, &att))
	assert.Equal(t, "cat.png", att.Name)
	assert.Equal(t, domain.AttachmentImage, att.Kind)
}

func TestUploadAttachmentLimits(t *testing.T) {
	f := newFixture(t)
	status, env := f.send(t, multipartUpload(t, "big.bin", "application/zip", bytes.Repeat([]byte("x"), 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "validation", env.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer alice")
	status, env = f.send(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", env.Code)
}

func TestCreateNotificationValidation(t *testing.T) {
	f := newFixture(t)
	status, env := f.do(t, http.MethodPost, "/v1/notifications", "alice",
		map[string]string{"recipient": "bob", "type": "poke", "message": "hey", "link": "not a url"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", env.Code)
	assert.Contains(t, env.Error, "type must be one of [follow like comment system]")
	assert.Contains(t, env.Error, "link must be a URL")
	assert.Empty(t, f.ann.notifications)
}
