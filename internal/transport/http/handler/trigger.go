package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/triggerd/engine/internal/catalog"
	"github.com/triggerd/engine/internal/domain"
	"github.com/triggerd/engine/internal/oneoff"
)

type TriggerHandler struct {
	store       *catalog.Store
	invocations *oneoff.Store
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewTriggerHandler(store *catalog.Store, invocations *oneoff.Store, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{store: store, invocations: invocations, validate: validator.New(), logger: logger.With("component", "trigger_handler")}
}

type createTriggerRequest struct {
	Name     string          `json:"name" validate:"required,max=255"`
	Schedule string          `json:"schedule" validate:"required"`
	Webhook  webhookConfDTO  `json:"webhook"`
	Payload  map[string]any  `json:"payload,omitempty"`
	Retry    retryConfDTO    `json:"retry_conf"`
	Headers  []headerConfDTO `json:"headers,omitempty"`
	Comment  *string         `json:"comment,omitempty"`
}

type triggerResponse struct {
	Name      string          `json:"name"`
	Schedule  string          `json:"schedule"`
	Webhook   webhookConfDTO  `json:"webhook"`
	Payload   map[string]any  `json:"payload,omitempty"`
	Retry     retryConfDTO    `json:"retry_conf"`
	Headers   []headerConfDTO `json:"headers,omitempty"`
	Comment   *string         `json:"comment,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toTriggerResponse(d domain.CronTriggerDefinition) triggerResponse {
	var payload map[string]any
	if len(d.Payload) > 0 {
		_ = jsonUnmarshal(d.Payload, &payload)
	}
	return triggerResponse{
		Name:      d.Name,
		Schedule:  d.Schedule,
		Webhook:   webhookConfFromDomain(d.Webhook),
		Payload:   payload,
		Retry:     retryConfFromDomain(d.RetryConf),
		Headers:   headersFromDomain(d.HeaderConf),
		Comment:   d.Comment,
		CreatedAt: d.CreatedAt.Format(timeLayout),
		UpdatedAt: d.UpdatedAt.Format(timeLayout),
	}
}

func (h *TriggerHandler) Create(c *gin.Context) {
	var req createTriggerRequest
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

	def := domain.CronTriggerDefinition{
		Name:       req.Name,
		Schedule:   req.Schedule,
		Webhook:    req.Webhook.toDomain(),
		Payload:    payload,
		RetryConf:  req.Retry.toDomain(),
		HeaderConf: headersToDomain(req.Headers),
		Comment:    req.Comment,
	}

	created, err := h.store.Create(c.Request.Context(), def)
	if err != nil {
		if errors.Is(err, catalog.ErrNameConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": errDuplicateName})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "create trigger", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusCreated, toTriggerResponse(created))
}

func (h *TriggerHandler) Update(c *gin.Context) {
	name := c.Param("name")

	var req createTriggerRequest
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

	def := domain.CronTriggerDefinition{
		Schedule:   req.Schedule,
		Webhook:    req.Webhook.toDomain(),
		Payload:    payload,
		RetryConf:  req.Retry.toDomain(),
		HeaderConf: headersToDomain(req.Headers),
		Comment:    req.Comment,
	}

	updated, err := h.store.Update(c.Request.Context(), name, def)
	if err != nil {
		if errors.Is(err, domain.ErrTriggerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errTriggerNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "update trigger", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, toTriggerResponse(updated))
}

func (h *TriggerHandler) Delete(c *gin.Context) {
	name := c.Param("name")

	if err := h.store.Delete(c.Request.Context(), name); err != nil {
		if errors.Is(err, domain.ErrTriggerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errTriggerNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "delete trigger", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *TriggerHandler) GetByName(c *gin.Context) {
	name := c.Param("name")

	def, err := h.store.GetByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrTriggerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errTriggerNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get trigger", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, toTriggerResponse(def))
}

func (h *TriggerHandler) List(c *gin.Context) {
	defs, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list triggers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]triggerResponse, len(defs))
	for i, d := range defs {
		out[i] = toTriggerResponse(d)
	}
	c.JSON(http.StatusOK, gin.H{"triggers": out})
}

func (h *TriggerHandler) ListInvocations(c *gin.Context) {
	name := c.Param("name")
	limit, _ := strconv.Atoi(c.Query("limit"))

	invs, next, err := h.invocations.ListInvocationsByTrigger(c.Request.Context(), name, c.Query("cursor"), limit)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list trigger invocations", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]invocationResponse, len(invs))
	for i, inv := range invs {
		out[i] = invocationResponse{ID: inv.ID, EventID: inv.EventID, Status: inv.Status, Response: inv.Response}
	}
	c.JSON(http.StatusOK, gin.H{"invocations": out, "next_cursor": next})
}
