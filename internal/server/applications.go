package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onboardly/onboardly/config"
	"github.com/onboardly/onboardly/internal/store"
)

type ApplicationsHandler struct {
	Store   *store.Store
	Uploads config.UploadsConfig
}

func (h *ApplicationsHandler) Register(g *echo.Group, secret []byte) {
	g.POST("/apply", h.apply)
	admin := g.Group("")
	admin.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	admin.GET("", h.list)
	admin.PUT("/:id/processed", h.setProcessed)
}

// apply accepts a multipart submission. Every field is validated before any
// store or filesystem access so a bad request costs nothing.
func (h *ApplicationsHandler) apply(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	email := strings.TrimSpace(c.FormValue("email"))
	phone := strings.TrimSpace(c.FormValue("phone"))
	position := strings.TrimSpace(c.FormValue("position"))
	jobIDRaw := strings.TrimSpace(c.FormValue("job_id"))

	switch {
	case name == "":
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	case email == "":
		return echo.NewHTTPError(http.StatusBadRequest, "email required")
	case position == "":
		return echo.NewHTTPError(http.StatusBadRequest, "position required")
	case jobIDRaw == "":
		return echo.NewHTTPError(http.StatusBadRequest, "job_id required")
	}
	jobID, err := strconv.ParseInt(jobIDRaw, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job_id")
	}

	file, err := c.FormFile("resume")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "resume file required")
	}
	if file.Size > h.Uploads.MaxBytes {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("resume larger than %d bytes", h.Uploads.MaxBytes))
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !h.extensionAllowed(ext) {
		return echo.NewHTTPError(http.StatusBadRequest,
			"resume must be one of: "+strings.Join(h.Uploads.AllowedExtensions, ", "))
	}

	if _, err := h.Store.GetJob(c.Request().Context(), jobID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}

	resumeURL, err := h.saveResume(file, ext)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	id, err := h.Store.CreateApplication(c.Request().Context(), store.Application{
		JobID:     jobID,
		Name:      name,
		Email:     email,
		Phone:     phone,
		Position:  position,
		ResumeURL: resumeURL,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"id": id, "resume_url": resumeURL})
}

func (h *ApplicationsHandler) extensionAllowed(ext string) bool {
	for _, allowed := range h.Uploads.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (h *ApplicationsHandler) saveResume(file *multipart.FileHeader, ext string) (string, error) {
	if err := os.MkdirAll(h.Uploads.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.Uploads.Dir, name))
	if err != nil {
		return "", fmt.Errorf("create resume file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write resume file: %w", err)
	}
	return "/uploads/" + name, nil
}

func (h *ApplicationsHandler) list(c echo.Context) error {
	var processed *bool
	if raw := c.QueryParam("processed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid processed filter")
		}
		processed = &v
	}
	apps, err := h.Store.ListApplications(c.Request().Context(), processed)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if apps == nil {
		apps = []store.Application{}
	}
	return c.JSON(http.StatusOK, apps)
}

func (h *ApplicationsHandler) setProcessed(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid application id")
	}
	processed := true
	if raw := c.QueryParam("processed"); raw != "" {
		if processed, err = strconv.ParseBool(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid processed value")
		}
	}
	if err := h.Store.SetApplicationProcessed(c.Request().Context(), id, processed); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "application not found")
	}
	return c.NoContent(http.StatusOK)
}
