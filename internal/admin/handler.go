// Package admin exposes operator endpoints for inspecting and nudging the funnel.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/internal/objection"
	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/httpkit"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request"
	errValidation     = "validation error"
	errInvalidID      = "invalid transfer ID"

	defaultHistoryLimit = 50
)

type ObjectionRefresher interface {
	Refresh(ctx context.Context) (*objection.Snapshot, error)
}

type AdvisorLister interface {
	ListByLocation(ctx context.Context, locationID string) ([]booking.Advisor, error)
}

type LeadReader interface {
	Get(ctx context.Context, contactID string) (leadstate.State, error)
}

type ConversationReader interface {
	Get(ctx context.Context, contactID string) (conversation.Conversation, error)
	History(ctx context.Context, contactID string, limit int) ([]conversation.Message, error)
}

type TransferResumer interface {
	Resume(ctx context.Context, id uuid.UUID) (transfer.Transfer, error)
}

// Handler serves the admin endpoints.
type Handler struct {
	objections    ObjectionRefresher
	advisors      AdvisorLister
	leads         LeadReader
	conversations ConversationReader
	transfers     TransferResumer
	val           *validator.Validator
	log           *logger.Logger
}

// Deps groups the handler's collaborators.
type Deps struct {
	Objections    ObjectionRefresher
	Advisors      AdvisorLister
	Leads         LeadReader
	Conversations ConversationReader
	Transfers     TransferResumer
	Validator     *validator.Validator
	Log           *logger.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		objections:    d.Objections,
		advisors:      d.Advisors,
		leads:         d.Leads,
		conversations: d.Conversations,
		transfers:     d.Transfers,
		val:           d.Validator,
		log:           d.Log,
	}
}

// RefreshObjectionsResponse reports the snapshot now in use.
type RefreshObjectionsResponse struct {
	Entries  int       `json:"entries"`
	LoadedAt time.Time `json:"loadedAt"`
}

// HandleRefreshObjections reloads the objection playbook.
// POST /api/v1/admin/objections/refresh
func (h *Handler) HandleRefreshObjections(c *gin.Context) {
	snap, err := h.objections.Refresh(c.Request.Context())
	if err != nil {
		h.log.Error("objection refresh failed", "error", err)
		httpkit.HandleError(c, apperr.Transient("objection refresh failed", err))
		return
	}
	h.log.Info("objections refreshed", "entries", snap.Len(), "operator_id", httpkit.GetIdentity(c).UserID())
	httpkit.OK(c, RefreshObjectionsResponse{Entries: snap.Len(), LoadedAt: snap.LoadedAt()})
}

// ListAdvisorsRequest is the query for the advisor listing.
type ListAdvisorsRequest struct {
	LocationID string `form:"locationId" validate:"required"`
}

// HandleListAdvisors lists the advisors of a location with their round-robin counters.
// GET /api/v1/admin/advisors?locationId=
func (h *Handler) HandleListAdvisors(c *gin.Context) {
	var req ListAdvisorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.Describe(err))
		return
	}

	advisors, err := h.advisors.ListByLocation(c.Request.Context(), req.LocationID)
	if httpkit.HandleError(c, err) {
		return
	}
	if advisors == nil {
		advisors = []booking.Advisor{}
	}
	httpkit.OK(c, gin.H{"items": advisors})
}

// LeadResponse combines the lead state with its conversation.
type LeadResponse struct {
	Lead         leadstate.State            `json:"lead"`
	Conversation *conversation.Conversation `json:"conversation,omitempty"`
	Messages     []conversation.Message     `json:"messages"`
}

// HandleGetLead returns the state and recent conversation of a contact.
// GET /api/v1/admin/leads/:contactId
func (h *Handler) HandleGetLead(c *gin.Context) {
	ctx := c.Request.Context()
	contactID := c.Param("contactId")

	state, err := h.leads.Get(ctx, contactID)
	if errors.Is(err, leadstate.ErrNotFound) {
		httpkit.HandleError(c, apperr.NotFound("lead not found"))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	resp := LeadResponse{Lead: state, Messages: []conversation.Message{}}
	conv, err := h.conversations.Get(ctx, contactID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		httpkit.OK(c, resp)
		return
	case err != nil:
		httpkit.HandleError(c, err)
		return
	}
	resp.Conversation = &conv

	history, err := h.conversations.History(ctx, contactID, defaultHistoryLimit)
	if httpkit.HandleError(c, err) {
		return
	}
	if history != nil {
		resp.Messages = history
	}
	httpkit.OK(c, resp)
}

// HandleRetryTransfer resumes a stored transfer from its last completed step.
// POST /api/v1/admin/transfers/:id/retry
func (h *Handler) HandleRetryTransfer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidID, nil)
		return
	}

	t, err := h.transfers.Resume(c.Request.Context(), id)
	if errors.Is(err, transfer.ErrNotFound) {
		httpkit.HandleError(c, apperr.NotFound("transfer not found"))
		return
	}
	if err != nil {
		h.log.Warn("transfer retry failed", "transfer_id", id, "error", err)
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, t)
}
