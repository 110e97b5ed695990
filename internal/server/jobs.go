package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/onboardly/onboardly/internal/search"
	"github.com/onboardly/onboardly/internal/store"
)

type JobsHandler struct {
	Store *store.Store
	Index *search.JobIndex
}

func (h *JobsHandler) Register(g *echo.Group, secret []byte) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
	admin := g.Group("")
	admin.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	admin.POST("", h.create)
}

// list returns all postings, or a full-text subset when ?q= is present.
func (h *JobsHandler) list(c echo.Context) error {
	if q := c.QueryParam("q"); q != "" && h.Index != nil {
		jobs, err := h.Index.Search(q, 50)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, jobs)
	}
	jobs, err := h.Store.ListJobs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if jobs == nil {
		jobs = []store.JobPosting{}
	}
	return c.JSON(http.StatusOK, jobs)
}

func (h *JobsHandler) get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}
	job, err := h.Store.GetJob(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

func (h *JobsHandler) create(c echo.Context) error {
	var req JobCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	job := store.JobPosting{
		Title:          req.Title,
		Department:     req.Department,
		Location:       req.Location,
		EmploymentType: req.EmploymentType,
		Description:    req.Description,
	}
	id, err := h.Store.CreateJob(c.Request().Context(), job)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	job.ID = id
	if h.Index != nil {
		if err := h.Index.Add(job); err != nil {
			c.Logger().Warnf("index job %d: %v", id, err)
		}
	}
	return c.JSON(http.StatusCreated, map[string]int64{"id": id})
}
