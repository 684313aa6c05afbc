// Package booking resolves the appointment link sent to a contact.
package booking

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/platform/logger"
)

// Source records which rule produced a link.
type Source string

const (
	SourceHistory    Source = "history"
	SourceAssignee   Source = "assignee"
	SourceRoundRobin Source = "round_robin"
	SourceFallback   Source = "fallback"
)

// Link is a resolved booking URL.
type Link struct {
	URL    string
	Source Source
	// AdvisorName is set when an advisor owns the link.
	AdvisorName string
}

// DefaultLinks returns a location's own booking link, or "".
type DefaultLinks interface {
	DefaultBookingLink(locationID string) string
}

// AssigneeLookup returns the CRM user assigned to a contact, or "" when unassigned.
type AssigneeLookup interface {
	AssignedUserID(ctx context.Context, locationID, contactID string) (string, error)
}

var urlRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// Resolver applies the link priority: history, CRM assignee, round-robin.
type Resolver struct {
	advisors   AdvisorStore
	assignees  AssigneeLookup
	defaults   DefaultLinks
	globalLink string
	markers    []string
	log        *logger.Logger
}

// NewResolver builds a resolver. markers are substrings that identify a
// booking URL in previously sent messages. assignees and defaults may be nil.
func NewResolver(advisors AdvisorStore, assignees AssigneeLookup, defaults DefaultLinks, globalLink string, markers []string, log *logger.Logger) *Resolver {
	return &Resolver{
		advisors:   advisors,
		assignees:  assignees,
		defaults:   defaults,
		globalLink: globalLink,
		markers:    markers,
		log:        log,
	}
}

// Resolve returns the link for a contact. It fails with ErrNoAdvisorAvailable
// when nothing in history, no assignee and no active advisor yields a link.
func (r *Resolver) Resolve(ctx context.Context, contactID, locationID string, history []conversation.Message) (Link, error) {
	known, err := r.knownLinks(ctx, locationID)
	if err != nil {
		return Link{}, err
	}
	if url := r.FromHistory(history, known); url != "" {
		return Link{URL: url, Source: SourceHistory}, nil
	}

	if r.assignees != nil {
		userID, err := r.assignees.AssignedUserID(ctx, locationID, contactID)
		switch {
		case err != nil:
			r.log.Warn("assignee lookup failed", "contact_id", contactID, "location_id", locationID, "error", err)
		case userID != "":
			a, err := r.advisors.FindByCRMUser(ctx, locationID, userID)
			if err == nil && a.BookingLink != "" {
				return Link{URL: a.BookingLink, Source: SourceAssignee, AdvisorName: a.Name}, nil
			}
			if err != nil && !errors.Is(err, ErrAdvisorNotFound) {
				r.log.Warn("assignee advisor lookup failed", "crm_user_id", userID, "error", err)
			}
		}
	}

	a, err := r.advisors.NextForLocation(ctx, locationID)
	if err != nil {
		return Link{}, err
	}
	return Link{URL: a.BookingLink, Source: SourceRoundRobin, AdvisorName: a.Name}, nil
}

// Fallback returns the location default link, else the global default.
func (r *Resolver) Fallback(locationID string) Link {
	if r.defaults != nil {
		if url := r.defaults.DefaultBookingLink(locationID); url != "" {
			return Link{URL: url, Source: SourceFallback}
		}
	}
	return Link{URL: r.globalLink, Source: SourceFallback}
}

// FromHistory returns the most recent booking URL the system already sent.
// known holds advisor and default links that count as booking URLs even
// without a marker.
func (r *Resolver) FromHistory(history []conversation.Message, known map[string]struct{}) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != conversation.RoleOutgoing || !m.SystemAuthored() {
			continue
		}
		for _, u := range urlRe.FindAllString(m.Content, -1) {
			u = strings.TrimRight(u, ".,;:!?")
			if _, ok := known[u]; ok || r.IsBookingURL(u) {
				return u
			}
		}
	}
	return ""
}

// IsBookingURL reports whether u matches one of the booking markers.
func (r *Resolver) IsBookingURL(u string) bool {
	for _, m := range r.markers {
		if m != "" && strings.Contains(u, m) {
			return true
		}
	}
	return false
}

func (r *Resolver) knownLinks(ctx context.Context, locationID string) (map[string]struct{}, error) {
	advisors, err := r.advisors.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(advisors)+2)
	for _, a := range advisors {
		known[a.BookingLink] = struct{}{}
	}
	if fb := r.Fallback(locationID).URL; fb != "" {
		known[fb] = struct{}{}
	}
	return known, nil
}
