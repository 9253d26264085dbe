package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/odtboun/River/common/id"
	"github.com/odtboun/River/common/logger"
)

type contextKey string

const (
	deviceCookieName              = "river_device"
	deviceCookieMaxAge            = 365 * 24 * 60 * 60
	deviceIDContextKey contextKey = "device_id"
)

// Device binds the request to a browser context. Each context keeps one
// app session, identified by a long-lived cookie.
func Device(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := c.Cookie(deviceCookieName)
		if err != nil || !validDeviceID(deviceID) {
			deviceID = id.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(deviceCookieName, deviceID, deviceCookieMaxAge, "/", "", secure, true)
		}

		ctx := context.WithValue(c.Request.Context(), deviceIDContextKey, deviceID)
		ctx = logger.WithLogFields(ctx, logger.LogFields{DeviceID: &deviceID})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetDeviceID returns the device bound by Device, empty when absent.
func GetDeviceID(ctx context.Context) string {
	deviceID, _ := ctx.Value(deviceIDContextKey).(string)
	return deviceID
}

func validDeviceID(raw string) bool {
	_, err := id.Parse(raw)
	return err == nil
}
