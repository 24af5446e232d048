package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnirelay/omnirelay/internal/queue"
	"github.com/omnirelay/omnirelay/internal/webhook"
)

// maxPayloadBytes bounds a single webhook body. Providers send at most a
// few KB; anything near this limit is abuse or a misconfiguration.
const maxPayloadBytes = 1 << 20

// Handler accepts provider webhooks, records them, and enqueues processing.
type Handler struct {
	events *webhook.Service
	queue  queue.Queue
	logger *slog.Logger
}

// NewHandler creates the gateway handler.
func NewHandler(log *slog.Logger, events *webhook.Service, q queue.Queue) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		events: events,
		queue:  q,
		logger: log.With(slog.String("service", "gateway")),
	}
}

// Register mounts the gateway routes.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/gateway/:token", h.Receive)
	e.GET("/events/:id", h.GetEvent)
	e.GET("/tenants/:tenantId/events", h.ListEvents)
	e.POST("/events/:id/reprocess", h.Reprocess)
}

type receiveResponse struct {
	Success        bool   `json:"success"`
	WebhookEventID string `json:"webhookEventId"`
}

// Receive is the ingestion endpoint. Everything that can be rejected is
// rejected before persistence; once an event row exists the caller gets a
// success regardless of how processing later goes.
func (h *Handler) Receive(c echo.Context) error {
	token, err := Decode(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid routing token")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty request body")
	}
	if len(body) > maxPayloadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}
	if !json.Valid(body) {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}

	ctx := c.Request().Context()
	event, err := h.events.Record(ctx, webhook.CreateInput{
		TenantID:       token.TenantID,
		ProjectID:      token.ProjectID,
		Kind:           token.Kind,
		Provider:       token.Provider,
		Channel:        token.Channel,
		Implementation: token.Implementation,
		Payload:        body,
		QueueName:      token.QueueName(),
	})
	if err != nil {
		h.logger.Error("record webhook event", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record event")
	}

	if err := h.enqueue(c, event); err != nil {
		// The event is durable; the reclaim sweep re-enqueues PENDING
		// events whose job was lost here.
		h.logger.Error("enqueue webhook event",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
	}
	return c.JSON(http.StatusOK, receiveResponse{Success: true, WebhookEventID: event.ID})
}

func (h *Handler) enqueue(c echo.Context, event webhook.Event) error {
	payload, err := json.Marshal(webhook.JobPayload{EventID: event.ID})
	if err != nil {
		return err
	}
	_, err = h.queue.Enqueue(c.Request().Context(), event.QueueName, payload, queue.Options{})
	return err
}

// GetEvent returns one recorded event with its current status.
func (h *Handler) GetEvent(c echo.Context) error {
	event, err := h.events.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, webhook.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load event")
	}
	return c.JSON(http.StatusOK, event)
}

// ListEvents returns a tenant's recent events, newest first.
func (h *Handler) ListEvents(c echo.Context) error {
	events, err := h.events.ListByTenant(c.Request().Context(), c.Param("tenantId"), 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list events")
	}
	if events == nil {
		events = []webhook.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

// Reprocess resets a terminal event to PENDING and re-enqueues it on its
// original queue.
func (h *Handler) Reprocess(c echo.Context) error {
	event, err := h.events.Reprocess(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, webhook.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	case errors.Is(err, webhook.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "event is not in a terminal state")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reprocess event")
	}
	if err := h.enqueue(c, event); err != nil {
		h.logger.Error("enqueue reprocessed event",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue event")
	}
	return c.JSON(http.StatusOK, receiveResponse{Success: true, WebhookEventID: event.ID})
}
