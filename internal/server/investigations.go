package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/osintlab/robin/internal/agent/core"
	"github.com/osintlab/robin/internal/stream"
	"github.com/osintlab/robin/session"
	"github.com/osintlab/robin/session/session_models"
)

var investigationsTracer trace.Tracer = otel.Tracer("robin/internal/server/investigations")

// InvestigationsHandler exposes the investigation lifecycle API: create,
// stream, follow up, list and inspect.
type InvestigationsHandler struct {
	Orchestrator *core.Orchestrator
	Sessions     session.Store
}

func (h *InvestigationsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.GET("/:id/stream", h.streamInvestigation)
	g.POST("/:id/followup", h.followUp)
}

type createRequest struct {
	Query string `json:"query"`
}

type createResponse struct {
	ID        string `json:"id"`
	StreamURL string `json:"stream_url"`
	Status    string `json:"status"`
}

type followUpRequest struct {
	Query string `json:"query"`
}

type investigationSummary struct {
	ID           string    `json:"id"`
	InitialQuery string    `json:"initial_query"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type investigationDetail struct {
	investigationSummary
	Messages        []session_models.Message        `json:"messages"`
	ToolsUsed       []session_models.ToolExecution  `json:"tools_used"`
	SubAgentResults []session_models.SubAgentResult `json:"subagent_results"`
}

func (h *InvestigationsHandler) create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	id, err := h.Orchestrator.Create(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, createResponse{
		ID:        id,
		StreamURL: fmt.Sprintf("/api/investigations/%s/stream", id),
		Status:    string(session_models.StatusPending),
	})
}

// streamInvestigation attaches to a pending investigation and runs it,
// relaying the ordered event stream as SSE. The stream always ends with
// a terminal complete or error event.
func (h *InvestigationsHandler) streamInvestigation(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	ctx, span := investigationsTracer.Start(ctx, "InvestigationsHandler.stream",
		trace.WithAttributes(attribute.String("investigation.id", id)))
	defer span.End()

	inv, err := h.Sessions.GetInvestigation(ctx, id)
	if err != nil {
		if session.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "investigation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if inv.Status != session_models.StatusPending {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("investigation is %s; only pending investigations can be streamed", inv.Status))
	}

	events, err := h.Orchestrator.Run(ctx, id, inv.Query)
	if err != nil {
		if session.IsRunActive(err) {
			return echo.NewHTTPError(http.StatusConflict, "a run is already active")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return relay(c, events)
}

// followUp resumes a finished investigation with a new query and
// streams the follow-up run directly in the response.
func (h *InvestigationsHandler) followUp(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	ctx, span := investigationsTracer.Start(ctx, "InvestigationsHandler.followUp",
		trace.WithAttributes(attribute.String("investigation.id", id)))
	defer span.End()

	var req followUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	events, err := h.Orchestrator.FollowUp(ctx, id, req.Query)
	if err != nil {
		switch {
		case session.IsNotFound(err):
			return echo.NewHTTPError(http.StatusNotFound, "investigation not found")
		case session.IsRunActive(err):
			return echo.NewHTTPError(http.StatusConflict, "a run is already active")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return relay(c, events)
}

// relay drains the run's event channel onto the response. The channel
// is always drained to completion so the run can finish even if the
// client goes away mid-stream.
func relay(c echo.Context, events <-chan stream.Event) error {
	resp := c.Response()
	if _, ok := resp.Writer.(http.Flusher); !ok {
		for range events {
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	w := stream.NewSSEWriter(resp)

	clientGone := false
	for ev := range events {
		if clientGone {
			continue
		}
		if err := w.Send(ev); err != nil {
			clientGone = true
		}
	}
	return nil
}

func (h *InvestigationsHandler) list(c echo.Context) error {
	invs, err := h.Sessions.ListInvestigations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]investigationSummary, 0, len(invs))
	for _, inv := range invs {
		out = append(out, summarize(inv))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *InvestigationsHandler) detail(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	inv, err := h.Sessions.GetInvestigation(ctx, id)
	if err != nil {
		if session.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "investigation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	detail := investigationDetail{investigationSummary: summarize(inv)}
	if detail.Messages, err = h.Sessions.Messages(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if detail.ToolsUsed, err = h.Sessions.ToolExecutions(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if detail.SubAgentResults, err = h.Sessions.SubAgentResults(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, detail)
}

func summarize(inv session_models.Investigation) investigationSummary {
	return investigationSummary{
		ID:           inv.ID,
		InitialQuery: inv.Query,
		Status:       string(inv.Status),
		CreatedAt:    inv.CreatedAt,
		UpdatedAt:    inv.UpdatedAt,
	}
}
