package admin

import (
	apphttp "leadfunnel_backend/internal/http"
)

// Module is the admin module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(d Deps) *Module {
	return &Module{handler: NewHandler(d)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "admin"
}

// RegisterRoutes mounts the operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/objections/refresh", m.handler.HandleRefreshObjections)
	ctx.Admin.GET("/advisors", m.handler.HandleListAdvisors)
	ctx.Admin.GET("/leads/:contactId", m.handler.HandleGetLead)
	ctx.Admin.POST("/transfers/:id/retry", m.handler.HandleRetryTransfer)
}
