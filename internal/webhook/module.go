// Package webhook receives provider webhooks, normalizes their payloads and
// hands the resulting events to the conversation pipeline.
package webhook

import (
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/internal/orchestrator"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"
)

// Module is the webhook module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the webhook module.
func NewModule(campuses CampusResolver, dispatcher orchestrator.Dispatcher, pipeline Pipeline, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(NewNormalizer(campuses), dispatcher, pipeline, val, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the provider endpoints on the shared-secret group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/conversations", m.handler.HandleConversation)
	ctx.Webhooks.POST("/facebook", m.handler.HandleFacebookComment)
	ctx.Webhooks.POST("/instagram", m.handler.HandleInstagramComment)
}
