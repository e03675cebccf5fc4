package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/workflow"
)

// sseEvent is one wire event of the analysis stream.
type sseEvent struct {
	name    string
	payload any
}

// startPayload is the first stream event.
type startPayload struct {
	SessionID  string `json:"session_id"`
	ClientName string `json:"client_name"`
	INN        string `json:"inn,omitempty"`
}

// completePayload is the last stream event of a successful run.
type completePayload struct {
	SessionID string `json:"session_id"`
}

// awaitingFeedbackPayload carries the draft report together with the session
// identifier the eventual result event is correlated by. The draft has no
// report id yet; one is assigned when the accepted report is persisted.
type awaitingFeedbackPayload struct {
	SessionID string                       `json:"session_id"`
	Report    *models.ClientAnalysisReport `json:"report"`
}

// serveSSE drains the session's bus subscription into the response body.
// Returns when the session reaches a terminal event, the client goes away,
// or the server shuts down (after a best-effort error event).
func (s *Server) serveSSE(c *echo.Context, events <-chan workflow.Event) error {
	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	clientGone := c.Request().Context().Done()
	for {
		select {
		case <-clientGone:
			// The run continues; the client can fetch the report from the
			// thread store after reconnecting.
			return nil
		case <-s.shutdownCh:
			writeSSE(w, sseEvent{name: "error", payload: &ErrorBody{
				Kind:    errkind.ServerShuttingDown,
				Message: "server is shutting down",
			}})
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			wire, terminal := mapEvent(ev)
			for _, we := range wire {
				if err := writeSSE(w, we); err != nil {
					return nil
				}
			}
			if terminal {
				return nil
			}
		}
	}
}

// mapEvent translates one bus event into zero or more wire events.
// Collection progress is carried by the per-source events and the terminal
// stages by result/complete, so only the planning and analyzing stages emit
// a progress event.
func mapEvent(ev workflow.Event) (wire []sseEvent, terminal bool) {
	switch ev.Type {
	case workflow.EventSessionStarted:
		p, _ := ev.Payload.(workflow.SessionStartedPayload)
		wire = append(wire, sseEvent{name: "start", payload: &startPayload{
			SessionID:  ev.SessionID,
			ClientName: p.ClientName,
			INN:        p.INN,
		}})
	case workflow.EventStageStarted:
		p, _ := ev.Payload.(workflow.StagePayload)
		if p.Stage == models.StagePlanning || p.Stage == models.StageAnalyzing {
			wire = append(wire, sseEvent{name: "progress", payload: p})
		}
	case workflow.EventPlanReady:
		wire = append(wire, sseEvent{name: "orchestrator", payload: ev.Payload})
	case workflow.EventSourceResult:
		wire = append(wire, sseEvent{name: "source_result", payload: ev.Payload})
	case workflow.EventReportReady:
		wire = append(wire, sseEvent{name: "report", payload: ev.Payload})
	case workflow.EventAwaitingFeedback:
		p, _ := ev.Payload.(workflow.ReportPayload)
		wire = append(wire, sseEvent{name: "awaiting_feedback", payload: &awaitingFeedbackPayload{
			SessionID: ev.SessionID,
			Report:    p.Report,
		}})
	case workflow.EventCompleted:
		wire = append(wire,
			sseEvent{name: "result", payload: ev.Payload},
			sseEvent{name: "complete", payload: &completePayload{SessionID: ev.SessionID}},
		)
		terminal = true
	case workflow.EventFailed:
		p, _ := ev.Payload.(workflow.FailedPayload)
		wire = append(wire, sseEvent{name: "error", payload: &ErrorBody{
			Kind:    p.Kind,
			Message: p.Message,
		}})
		terminal = true
	}
	return wire, terminal
}

func writeSSE(w http.ResponseWriter, ev sseEvent) error {
	data, err := json.Marshal(ev.payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
