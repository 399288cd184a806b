package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/triggerd/engine/internal/transport/http/handler"
	"github.com/triggerd/engine/internal/transport/http/middleware"
)

func NewRouter(
	triggerHandler *handler.TriggerHandler,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	jwtKey []byte,
	logger *slog.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Security())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	api := r.Group("/api", middleware.Auth(jwtKey))

	triggers := api.Group("/triggers")
	triggers.POST("", triggerHandler.Create)
	triggers.GET("", triggerHandler.List)
	triggers.GET("/:name", triggerHandler.GetByName)
	triggers.PATCH("/:name", triggerHandler.Update)
	triggers.DELETE("/:name", triggerHandler.Delete)
	triggers.GET("/:name/invocations", triggerHandler.ListInvocations)

	events := api.Group("/oneoff-events")
	events.POST("", eventHandler.Create)
	events.GET("", eventHandler.List)
	events.GET("/:id", eventHandler.GetByID)
	events.GET("/:id/invocations", eventHandler.ListInvocations)

	return r
}
