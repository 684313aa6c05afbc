package webhook

import (
	"context"
	"net/http"

	"leadfunnel_backend/internal/orchestrator"
	"leadfunnel_backend/platform/httpkit"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"

	statusAccepted = "accepted"
	statusIgnored  = "ignored"
	statusObserved = "observed"
	statusStored   = "stored"
)

// Pipeline is the synchronous part of the orchestrator used by the webhooks.
type Pipeline interface {
	ObserveOutbound(ctx context.Context, out orchestrator.Outbound) error
	RecordComment(ctx context.Context, cm orchestrator.Comment) error
}

// Handler handles webhook HTTP requests.
type Handler struct {
	normalizer *Normalizer
	dispatcher orchestrator.Dispatcher
	pipeline   Pipeline
	val        *validator.Validator
	log        *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(normalizer *Normalizer, dispatcher orchestrator.Dispatcher, pipeline Pipeline, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{normalizer: normalizer, dispatcher: dispatcher, pipeline: pipeline, val: val, log: log}
}

// HandleConversation accepts a conversational message event.
// POST /webhook/conversations
// Inbound messages are acknowledged with 202 and processed after the response.
func (h *Handler) HandleConversation(c *gin.Context) {
	p, ok := h.decode(c)
	if !ok {
		return
	}

	res := h.normalizer.Normalize(p)
	switch res.Kind {
	case KindIgnored:
		h.log.Debug("webhook ignored", "reason", res.Reason)
		httpkit.OK(c, gin.H{"status": statusIgnored, "reason": res.Reason})

	case KindOutbound:
		if !h.validate(c, res.Outbound) {
			return
		}
		if err := h.pipeline.ObserveOutbound(c.Request.Context(), res.Outbound); httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, gin.H{"status": statusObserved, "eventId": res.Outbound.ID})

	case KindInbound:
		in := res.Inbound
		if !h.validate(c, in) {
			return
		}
		if err := h.dispatcher.Dispatch(c.Request.Context(), in); err != nil {
			h.log.WithEvent(in.ID).Error("dispatch failed", "contact_id", in.ContactID, "error", err)
			httpkit.HandleError(c, err)
			return
		}
		httpkit.Accepted(c, gin.H{"status": statusAccepted, "eventId": in.ID})
	}
}

// HandleFacebookComment stores a Facebook post comment.
// POST /webhook/facebook
func (h *Handler) HandleFacebookComment(c *gin.Context) {
	h.handleComment(c, "facebook")
}

// HandleInstagramComment stores an Instagram post comment.
// POST /webhook/instagram
func (h *Handler) HandleInstagramComment(c *gin.Context) {
	h.handleComment(c, "instagram")
}

func (h *Handler) handleComment(c *gin.Context, platform string) {
	p, ok := h.decode(c)
	if !ok {
		return
	}

	cm, ok := h.normalizer.NormalizeComment(platform, p)
	if !ok {
		httpkit.OK(c, gin.H{"status": statusIgnored, "reason": ReasonEmptyComment})
		return
	}
	if !h.validate(c, cm) {
		return
	}
	if err := h.pipeline.RecordComment(c.Request.Context(), cm); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": statusStored, "eventId": cm.ID})
}

func (h *Handler) decode(c *gin.Context) (Payload, bool) {
	body, err := c.GetRawData()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return nil, false
	}
	p, err := DecodePayload(body)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return nil, false
	}
	return p, true
}

func (h *Handler) validate(c *gin.Context, v any) bool {
	if err := h.val.Struct(v); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.Describe(err))
		return false
	}
	return true
}
