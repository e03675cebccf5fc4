package api

import (
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/services"
)

// analyzeClientHandler handles POST /api/v1/agent/analyze-client.
// With ?stream=true the run is streamed as SSE events; otherwise the call
// blocks until the session finishes and returns the final report.
func (s *Server) analyzeClientHandler(c *echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput, err.Error())
	}

	input := services.AnalyzeInput{
		ClientName:    req.ClientName,
		INN:           req.INN,
		Notes:         req.AdditionalNotes,
		AwaitFeedback: req.AwaitFeedback,
	}

	if c.QueryParam("stream") == "true" {
		return s.streamAnalysis(c, input)
	}

	outcome, err := s.deps.Analysis.Analyze(c.Request().Context(), input)
	if err != nil {
		kind, message := classify(err)
		return c.JSON(errkind.HTTPStatus(kind), &AnalyzeResponse{
			Status: "failed",
			Error:  &ErrorBody{Kind: kind, Message: message, RequestID: reqID(c)},
		})
	}
	return c.JSON(http.StatusOK, &AnalyzeResponse{
		Status:    "success",
		SessionID: outcome.SessionID,
		ReportID:  outcome.ReportID,
		Report:    outcome.Report,
	})
}

// streamAnalysis subscribes to the session's events before launching the
// run, so the stream starts with the first event. A client disconnect drops
// the subscription only; the run continues to the thread store.
func (s *Server) streamAnalysis(c *echo.Context, input services.AnalyzeInput) error {
	sessionID := uuid.NewString()
	events, unsubscribe := s.deps.Bus.Subscribe(sessionID)
	defer unsubscribe()

	if err := s.deps.Analysis.StartDetached(sessionID, input); err != nil {
		return writeError(c, err)
	}
	return s.serveSSE(c, events)
}

// analyzeAsyncHandler handles POST /api/v1/agent/analyze-client/async.
func (s *Server) analyzeAsyncHandler(c *echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return writeErrorKind(c, http.StatusBadRequest, errkind.InvalidInput, err.Error())
	}

	taskID, err := s.deps.Analysis.Enqueue(c.Request().Context(), services.AnalyzeInput{
		ClientName: req.ClientName,
		INN:        req.INN,
		Notes:      req.AdditionalNotes,
	}, req.Priority)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, &EnqueueResponse{TaskID: taskID, Status: "queued"})
}

// taskStatusHandler handles GET /api/v1/agent/task/:task_id.
func (s *Server) taskStatusHandler(c *echo.Context) error {
	view, err := s.deps.Tasks.Status(c.Request().Context(), c.Param("task_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// cancelSessionHandler handles DELETE /api/v1/agent/analyze/:session_id.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	if err := s.deps.Analysis.Cancel(sessionID); err != nil {
		return writeError(c, err)
	}
	if s.deps.Pool != nil {
		// The session may be running as a queued task on this replica.
		s.deps.Pool.CancelTask(sessionID)
	}
	return c.JSON(http.StatusAccepted, &CancelResponse{SessionID: sessionID, Status: "cancelling"})
}
