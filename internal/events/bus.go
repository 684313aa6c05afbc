package events

import (
	platformevents "leadfunnel_backend/platform/events"
	"leadfunnel_backend/platform/logger"
)

// InMemoryBus carries the funnel events within one process. Both the API and
// the worker build their own; Wait drains pending handlers on shutdown.
type InMemoryBus = platformevents.InMemoryBus

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
