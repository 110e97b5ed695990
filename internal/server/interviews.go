package server

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onboardly/onboardly/internal/interview"
	"github.com/onboardly/onboardly/internal/store"
)

type InterviewsHandler struct {
	Store    *store.Store
	Registry *interview.Registry
}

func (h *InterviewsHandler) Register(g *echo.Group) {
	g.POST("", h.start)
	g.GET("/:id", h.get)
	g.POST("/:id/advance", h.advance)
	g.POST("/:id/retry", h.retry)
	g.POST("/:id/end", h.end)
}

// recordOutcomes persists every terminal session state. A session that fails
// and is then retried writes a row per transition; the last one wins.
func recordOutcomes(reg *interview.Registry, st *store.Store, logger *log.Logger) {
	reg.OnOutcome = func(sess *interview.Session, snap interview.Snapshot) {
		if err := st.FinishInterview(context.Background(), sess.ID,
			string(snap.State), string(snap.Failure), snap.NextStage); err != nil && logger != nil {
			logger.Printf("record interview %s outcome: %v", sess.ID, err)
		}
	}
}

// start launches a session for an application and records it. The response
// returns immediately with the session in connecting state; media and the
// room handshake complete in the background.
func (h *InterviewsHandler) start(c echo.Context) error {
	var req InterviewStartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ApplicationID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "application_id required")
	}
	if _, err := h.Store.GetApplication(c.Request().Context(), req.ApplicationID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "application not found")
	}

	sess, err := h.Registry.Start(c.Request().Context(), req.ApplicationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	if _, err := h.Store.CreateInterview(c.Request().Context(), req.ApplicationID,
		sess.ID, string(sess.Mode()), string(sess.State())); err != nil {
		c.Logger().Errorf("record interview %s: %v", sess.ID, err)
	}

	return c.JSON(http.StatusCreated, sess.Snapshot())
}

func (h *InterviewsHandler) get(c echo.Context) error {
	sess, ok := h.Registry.Get(c.Param("id"))
	if !ok {
		iv, err := h.Store.GetInterviewBySession(c.Request().Context(), c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "interview not found")
		}
		return c.JSON(http.StatusOK, iv)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *InterviewsHandler) advance(c echo.Context) error {
	sess, ok := h.Registry.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "interview not found")
	}
	sess.Advance()
	return c.JSON(http.StatusOK, sess.Snapshot())
}

// retry relaunches a failed session, keeping its id. Anything other than a
// failed session is a conflict.
func (h *InterviewsHandler) retry(c echo.Context) error {
	if _, ok := h.Registry.Get(c.Param("id")); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "interview not found")
	}
	sess, err := h.Registry.Retry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *InterviewsHandler) end(c echo.Context) error {
	sess, ok := h.Registry.End(c.Request().Context(), c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "interview not found")
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}
