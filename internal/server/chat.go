package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onboardly/onboardly/internal/chat"
)

type ChatHandler struct {
	Client *chat.Client
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/sessions", h.createSession)
	g.POST("/messages", h.sendMessage)
}

func (h *ChatHandler) createSession(c echo.Context) error {
	var req ChatSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		req.UserID = "anon-" + uuid.NewString()[:8]
	}
	sess, err := h.Client.CreateSession(c.Request().Context(), req.UserID, uuid.NewString(), req.State)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *ChatHandler) sendMessage(c echo.Context) error {
	var req ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	if req.UserID == "" || req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and session_id required")
	}
	reply, err := h.Client.Send(c.Request().Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"reply": reply})
}
