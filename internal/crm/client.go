// Package crm is the LeadConnector REST client. Every call carries the
// credential of the location it targets.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/retry"
	"leadfunnel_backend/platform/tracing"
)

const (
	versionConversations = "2021-04-15"
	versionContacts      = "2021-07-28"
)

// Credentials returns the API token of a location, or "" when unknown.
type Credentials interface {
	Token(locationID string) string
}

type Client struct {
	baseURL  string
	http     *http.Client
	creds    Credentials
	rate     float64
	limiters sync.Map
	policy   retry.Policy
	tracer   trace.Tracer
	log      *logger.Logger
}

func NewClient(cfg config.CRMConfig, creds Credentials, log *logger.Logger) *Client {
	timeout := cfg.GetCRMTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		rate:    cfg.GetCRMRateLimit(),
		policy:  retry.Policy{Attempts: cfg.GetCRMMaxAttempts(), BaseDelay: 250 * time.Millisecond},
		tracer:  tracing.Tracer("leadfunnel/crm"),
		log:     log,
	}
}

type request struct {
	op         string
	method     string
	path       string
	version    string
	locationID string
	body       any
	out        any
}

// do sends one request with rate limiting, retries and a span.
func (c *Client) do(ctx context.Context, r request) error {
	ctx, span := c.tracer.Start(ctx, "crm."+r.op, trace.WithAttributes(
		attribute.String("crm.location_id", r.locationID),
		attribute.String("http.method", r.method),
	))
	defer span.End()

	token := c.creds.Token(r.locationID)
	if token == "" {
		err := apperr.Invariant("no CRM credential for location " + r.locationID).WithOp("crm." + r.op)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("marshal %s payload: %w", r.op, err)
		}
	}

	err := retry.Do(ctx, c.log, "crm."+r.op, c.policy, func(ctx context.Context) error {
		if err := c.limiter(r.locationID).Wait(ctx); err != nil {
			return err
		}
		return c.send(ctx, r, token, payload)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) send(ctx context.Context, r request, token string, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Version", r.version)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transient("crm request failed", err).WithOp("crm." + r.op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(r.op, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if r.out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", r.op, err)
	}
	return nil
}

func statusError(op string, status int, body string) error {
	msg := fmt.Sprintf("crm returned %d: %s", status, body)
	var kind apperr.Kind
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		kind = apperr.KindTransient
	case status == http.StatusNotFound:
		kind = apperr.KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = apperr.KindUnauthorized
	default:
		kind = apperr.KindBadRequest
	}
	return apperr.New(kind, msg).WithOp("crm." + op)
}

func (c *Client) limiter(locationID string) *rate.Limiter {
	if v, ok := c.limiters.Load(locationID); ok {
		return v.(*rate.Limiter)
	}
	limit := rate.Inf
	burst := 1
	if c.rate > 0 {
		limit = rate.Limit(c.rate)
		burst = max(1, int(c.rate))
	}
	v, _ := c.limiters.LoadOrStore(locationID, rate.NewLimiter(limit, burst))
	return v.(*rate.Limiter)
}
