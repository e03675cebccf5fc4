package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
)

// listThreadsHandler handles GET /api/v1/agent/threads.
func (s *Server) listThreadsHandler(c *echo.Context) error {
	limit, offset := 0, 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"limit must be a positive integer")
		}
		limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"offset must be a non-negative integer")
		}
		offset = n
	}

	var threads []models.ThreadSummary
	var err error
	if inn := c.QueryParam("inn"); inn != "" {
		threads, err = s.deps.Threads.ListByINN(c.Request().Context(), inn, limit, offset)
	} else {
		threads, err = s.deps.Threads.List(c.Request().Context(), limit, offset)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &ThreadListResponse{
		Threads: threads,
		Limit:   limit,
		Offset:  offset,
	})
}

// threadHistoryHandler handles GET /api/v1/agent/thread_history/:thread_id.
func (s *Server) threadHistoryHandler(c *echo.Context) error {
	thread, err := s.deps.Threads.History(c.Request().Context(), c.Param("thread_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, thread)
}
