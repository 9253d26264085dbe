package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/http/dto"
	"github.com/odtboun/River/internal/http/middleware"
	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/service"
)

const keepAliveInterval = 25 * time.Second

type SessionHandler struct {
	sessions  service.SessionService
	keepAlive time.Duration
}

func NewSessionHandler(sessions service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions, keepAlive: keepAliveInterval}
}

// Open enters the app from the page's query string, e.g. a shared
// candidate link.
func (h *SessionHandler) Open(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.Open(c.Request.Context(), c.Request.URL.RawQuery)
	respondState(c, sess)
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	respondState(c, sess)
}

// Events streams the session state every time the derived step changes.
func (h *SessionHandler) Events(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}

	stream, ok := newStepStream(c.Writer)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	steps, cancel := sess.Subscribe()
	defer cancel()

	c.Status(http.StatusOK)
	if err := stream.ping("ready"); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	clientClosed := c.Request.Context().Done()
	for {
		var err error
		select {
		case <-clientClosed:
			return
		case step, ok := <-steps:
			if !ok {
				_ = stream.closed()
				return
			}
			err = stream.step(dto.StepEvent{
				Step:    step,
				Session: dto.ToSessionResponse(sess.State()),
			})
		case now := <-ticker.C:
			sess.Touch()
			err = stream.ping(now.UTC().Format(time.RFC3339Nano))
		}
		if err != nil {
			slog.DebugContext(c.Request.Context(), "event stream ended", "error", err)
			return
		}
	}
}

func (h *SessionHandler) SetView(c *gin.Context) {
	var req dto.SetViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: view must be landing, employer or candidate"})
		return
	}
	view, err := model.ParseView(req.View)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.SetView(view)
	respondState(c, sess)
}

func (h *SessionHandler) SetFields(c *gin.Context) {
	var req dto.SetFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: fields must be base, bonus or equity"})
		return
	}
	fields := make([]model.Field, 0, len(req.Fields))
	for _, raw := range req.Fields {
		f, ok := model.ParseField(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field " + raw})
			return
		}
		fields = append(fields, f)
	}

	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.SetFields(fields)
	respondState(c, sess)
}

func (h *SessionHandler) UpdateForm(c *gin.Context) {
	var req dto.UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: inputs are required"})
		return
	}

	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	for raw, value := range req.Inputs {
		f, ok := model.ParseField(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field " + raw})
			return
		}
		if err := sess.SetInput(f, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	respondState(c, sess)
}

func (h *SessionHandler) OverrideTotal(c *gin.Context) {
	var req dto.OverrideTotalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.OverrideTotal(req.Total)
	respondState(c, sess)
}

func (h *SessionHandler) ResetTotal(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.ResetTotal()
	respondState(c, sess)
}

// Perform runs the named action. A failed ledger command still answers
// 200; the failure is in last_error.
func (h *SessionHandler) Perform(c *gin.Context) {
	ctx := c.Request.Context()

	action, err := flow.ParseAction(c.Param("action"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}

	if err := sess.Perform(ctx, action); err != nil {
		switch {
		case errors.Is(err, flow.ErrSubmissionPending):
			c.JSON(http.StatusConflict, gin.H{"error": "a submission is already pending"})
		case errors.Is(err, flow.ErrActionNotAllowed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, flow.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to perform action", "error", err, "action", action)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to perform action"})
		}
		return
	}
	respondState(c, sess)
}

func (h *SessionHandler) Reset(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.Reset()
	respondState(c, sess)
}

func (h *SessionHandler) DismissError(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.DismissError()
	respondState(c, sess)
}

// loadSession resolves the app session of the request's device and writes
// the error response when it cannot.
func loadSession(c *gin.Context, sessions service.SessionService) (service.Session, bool) {
	ctx := c.Request.Context()
	deviceID := middleware.GetDeviceID(ctx)
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing device"})
		return nil, false
	}

	sess, err := sessions.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, service.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
			return nil, false
		}
		slog.ErrorContext(ctx, "failed to load app session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	return sess, true
}

func respondState(c *gin.Context, sess service.Session) {
	c.JSON(http.StatusOK, dto.ToSessionResponse(sess.State()))
}
