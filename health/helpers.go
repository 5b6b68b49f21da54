package health

import (
	"sort"
	"time"
)

// Status values.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded marks a component that is up but missing something optional,
// such as a side service.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Aggregate rolls sub-statuses into one: any unhealthy makes the whole
// unhealthy, otherwise any degraded makes it degraded. Sub-statuses are
// attached sorted by component.
func Aggregate(component string, subs []Status) Status {
	worst := StateHealthy
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			worst = StateUnhealthy
		case sub.IsDegraded() && worst == StateHealthy:
			worst = StateDegraded
		}
	}

	var msg string
	switch {
	case len(subs) == 0:
		msg = "nothing monitored"
	case worst == StateUnhealthy:
		msg = "one or more components are unhealthy"
	case worst == StateDegraded:
		msg = "one or more components are degraded"
	default:
		msg = "all components healthy"
	}

	status := newStatus(component, worst, msg)
	if len(subs) > 0 {
		status.SubStatuses = make([]Status, len(subs))
		copy(status.SubStatuses, subs)
		sort.Slice(status.SubStatuses, func(i, j int) bool {
			return status.SubStatuses[i].Component < status.SubStatuses[j].Component
		})
	}
	return status
}
