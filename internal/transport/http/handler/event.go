package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/oneoff"
)

type EventHandler struct {
	store    *oneoff.Store
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEventHandler(store *oneoff.Store, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: store, validate: validator.New(), logger: logger.With("component", "event_handler")}
}

type createEventRequest struct {
	ScheduledTime time.Time       `json:"scheduled_time" validate:"required"`
	Webhook       webhookConfDTO  `json:"webhook"`
	Payload       map[string]any  `json:"payload,omitempty"`
	Retry         retryConfDTO    `json:"retry_conf"`
	Headers       []headerConfDTO `json:"headers,omitempty"`
	Comment       *string         `json:"comment,omitempty"`
}

type eventResponse struct {
	ID            string          `json:"id"`
	ScheduledTime string          `json:"scheduled_time"`
	Status        domain.Status   `json:"status"`
	Tries         int             `json:"tries"`
	CreatedAt     string          `json:"created_at"`
	Webhook       webhookConfDTO  `json:"webhook"`
	Payload       map[string]any  `json:"payload,omitempty"`
	Retry         retryConfDTO    `json:"retry_conf"`
	Headers       []headerConfDTO `json:"headers,omitempty"`
	Comment       *string         `json:"comment,omitempty"`
}

func toEventResponse(e domain.OneOffScheduledEvent) eventResponse {
	var payload map[string]any
	if len(e.Payload) > 0 {
		_ = jsonUnmarshal(e.Payload, &payload)
	}
	return eventResponse{
		ID:            e.ID,
		ScheduledTime: e.ScheduledTime.Format(timeLayout),
		Status:        e.Status,
		Tries:         e.Tries,
		CreatedAt:     e.CreatedAt.Format(timeLayout),
		Webhook:       webhookConfFromDomain(e.WebhookConf),
		Payload:       payload,
		Retry:         retryConfFromDomain(e.RetryConf),
		Headers:       headersFromDomain(e.HeaderConf),
		Comment:       e.Comment,
	}
}

func (h *EventHandler) Create(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest, "detail": err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest, "detail": err.Error()})
		return
	}

	payload, err := jsonMarshal(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	created, err := h.store.Create(c.Request.Context(), domain.OneOffScheduledEvent{
		ScheduledTime: req.ScheduledTime,
		WebhookConf:   req.Webhook.toDomain(),
		Payload:       payload,
		RetryConf:     req.Retry.toDomain(),
		HeaderConf:    headersToDomain(req.Headers),
		Comment:       req.Comment,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "create event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusCreated, toEventResponse(created))
}

func (h *EventHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errEventNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get event", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, toEventResponse(e))
}

func (h *EventHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.store.List(c.Request.Context(), oneoff.ListInput{
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	out := make([]eventResponse, len(result.Events))
	for i, e := range result.Events {
		out[i] = toEventResponse(e)
	}
	c.JSON(http.StatusOK, gin.H{"events": out, "next_cursor": result.NextCursor})
}

type invocationResponse struct {
	ID       string                   `json:"id"`
	EventID  string                   `json:"event_id"`
	Status   int                      `json:"status"`
	Response domain.InvocationResponse `json:"response"`
}

func (h *EventHandler) ListInvocations(c *gin.Context) {
	id := c.Param("id")
	class := domain.Class(c.DefaultQuery("class", string(domain.ClassOneOff)))
	limit, _ := strconv.Atoi(c.Query("limit"))

	invs, next, err := h.store.ListInvocations(c.Request.Context(), id, class, c.Query("cursor"), limit)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list invocations", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]invocationResponse, len(invs))
	for i, inv := range invs {
		out[i] = invocationResponse{ID: inv.ID, EventID: inv.EventID, Status: inv.Status, Response: inv.Response}
	}
	c.JSON(http.StatusOK, gin.H{"invocations": out, "next_cursor": next})
}
