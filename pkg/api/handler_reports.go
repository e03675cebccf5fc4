package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
)

// listReportsHandler handles GET /api/v1/reports.
func (s *Server) listReportsHandler(c *echo.Context) error {
	filters := models.ReportFilters{
		INN:        c.QueryParam("inn"),
		ClientName: c.QueryParam("client_name"),
	}

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"limit must be a positive integer")
		}
		filters.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"offset must be a non-negative integer")
		}
		filters.Offset = n
	}

	if v := c.QueryParam("risk_level"); v != "" {
		switch level := models.RiskLevel(v); level {
		case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical:
			filters.RiskLevel = level
		default:
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"invalid risk_level: must be low, medium, high, or critical")
		}
	}

	if v := c.QueryParam("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"invalid date_from: must be RFC3339")
		}
		filters.DateFrom = &t
	}
	if v := c.QueryParam("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"invalid date_to: must be RFC3339")
		}
		filters.DateTo = &t
	}

	if v := c.QueryParam("min_risk_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"min_risk_score must be an integer in [0,100]")
		}
		filters.MinRiskScore = &n
	}
	if v := c.QueryParam("max_risk_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput,
				"max_risk_score must be an integer in [0,100]")
		}
		filters.MaxRiskScore = &n
	}

	list, err := s.deps.Reports.List(c.Request().Context(), filters)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// getReportHandler handles GET /api/v1/reports/:report_id.
func (s *Server) getReportHandler(c *echo.Context) error {
	report, err := s.deps.Reports.Get(c.Request().Context(), c.Param("report_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// deleteReportHandler handles DELETE /api/v1/reports/:report_id (admin).
func (s *Server) deleteReportHandler(c *echo.Context) error {
	if err := s.deps.Reports.Delete(c.Request().Context(), c.Param("report_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
