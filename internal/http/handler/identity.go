package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/odtboun/River/internal/app"
	"github.com/odtboun/River/internal/identity"
	"github.com/odtboun/River/internal/service"
)

const maxBackupSize = 16 << 10

type IdentityHandler struct {
	sessions service.SessionService
}

func NewIdentityHandler(sessions service.SessionService) *IdentityHandler {
	return &IdentityHandler{sessions: sessions}
}

// ConnectBurner connects the device's local wallet, creating it on first
// use.
func (h *IdentityHandler) ConnectBurner(c *gin.Context) {
	ctx := c.Request.Context()
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	if _, err := sess.ConnectBurner(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to connect local wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to connect local wallet"})
		return
	}
	respondState(c, sess)
}

func (h *IdentityHandler) ConnectExternal(c *gin.Context) {
	ctx := c.Request.Context()
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	if _, err := sess.ConnectExternal(ctx); err != nil {
		if errors.Is(err, app.ErrExternalUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "external wallet not configured"})
			return
		}
		slog.WarnContext(ctx, "failed to connect external wallet", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to connect external wallet"})
		return
	}
	respondState(c, sess)
}

func (h *IdentityHandler) Disconnect(c *gin.Context) {
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	sess.Disconnect(c.Request.Context())
	respondState(c, sess)
}

// Export downloads the local wallet backup.
func (h *IdentityHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	data, err := sess.ExportWallet(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoWallet) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no local wallet"})
			return
		}
		slog.ErrorContext(ctx, "failed to export local wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export local wallet"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="river-burner-wallet.json"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/json", data)
}

// Import replaces the local wallet with an uploaded backup and connects it.
func (h *IdentityHandler) Import(c *gin.Context) {
	ctx := c.Request.Context()
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBackupSize+1))
	if err != nil || len(data) == 0 || len(data) > maxBackupSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: backup file is required"})
		return
	}

	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	if _, err := sess.ImportWallet(ctx, data); err != nil {
		if errors.Is(err, identity.ErrInvalidBackup) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to import local wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import local wallet"})
		return
	}
	respondState(c, sess)
}

// Clear deletes the local wallet.
func (h *IdentityHandler) Clear(c *gin.Context) {
	ctx := c.Request.Context()
	sess, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	if err := sess.ClearWallet(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear local wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear local wallet"})
		return
	}
	respondState(c, sess)
}
