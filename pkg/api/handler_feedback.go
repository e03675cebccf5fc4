package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
)

// feedbackHandler handles POST /api/v1/agent/feedback. A rating for a live
// session is delivered into its feedback stage; a rating for a finished
// session either records the verdict or re-runs the analysis.
func (s *Server) feedbackHandler(c *echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput, err.Error())
	}

	outcome, err := s.deps.Analysis.Feedback(c.Request().Context(), models.Feedback{
		ReportID:      req.ReportID,
		Rating:        models.FeedbackRating(req.Rating),
		Comment:       req.Comment,
		FocusAreas:    req.FocusAreas,
		RerunAnalysis: req.RerunAnalysis,
	})
	if err != nil {
		return writeError(c, err)
	}

	if outcome.Outcome != nil {
		return c.JSON(http.StatusOK, &FeedbackResponse{
			Status:   "success",
			ReportID: outcome.Outcome.ReportID,
			Report:   outcome.Outcome.Report,
		})
	}
	return c.JSON(http.StatusAccepted, &FeedbackResponse{Status: "accepted"})
}
