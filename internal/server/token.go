package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onboardly/onboardly/internal/interview"
	"github.com/onboardly/onboardly/internal/rtc"
)

type TokenHandler struct {
	Creds interview.Credentials
	TTL   time.Duration
}

func (h *TokenHandler) Register(g *echo.Group) {
	g.POST("/token", h.mint)
}

// mint returns a room access token. When the service credentials are absent
// or placeholders the deployment runs in demo mode and no token can exist;
// the 503 body tells the operator what to configure.
func (h *TokenHandler) mint(c echo.Context) error {
	var req RoomTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Room == "" || req.Identity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room and identity required")
	}

	if interview.SelectMode(h.Creds) != interview.ModeLive {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"live interviews are not configured: set livekit.url, livekit.api_key and livekit.api_secret")
	}

	token, err := rtc.GenerateAccessToken(h.Creds.APIKey, h.Creds.APISecret, req.Room, req.Identity, h.TTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token, "url": h.Creds.URL})
}
