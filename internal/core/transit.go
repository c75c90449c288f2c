package core

import (
	"dentalcore/pkg/domain"
	"time"
)

// transitSuccessor maps each transit status to its forward-chain successor.
// failed-delivery and delivered have no successor; failed-delivery re-enters
// the chain only through the explicit retry edge to out-for-delivery.
var transitSuccessor = map[domain.TransitStatus]domain.TransitStatus{
	domain.TransitPendingPickup:  domain.TransitPickedUp,
	domain.TransitPickedUp:       domain.TransitInTransit,
	domain.TransitInTransit:      domain.TransitOutForDelivery,
	domain.TransitOutForDelivery: domain.TransitDelivered,
}

// TransitReachable reports whether a single transition from one transit
// status to another is legal: forward progression along the chain, a jump to
// failed-delivery from any non-terminal state, or the failed-delivery retry
// back to out-for-delivery.
func TransitReachable(from, to domain.TransitStatus) bool {
	if from == domain.TransitDelivered {
		return false
	}
	if to == domain.TransitFailedDelivery {
		return from != domain.TransitFailedDelivery
	}
	if from == domain.TransitFailedDelivery {
		return to == domain.TransitOutForDelivery
	}
	return transitSuccessor[from] == to
}

// TransitOptions carries the optional fields of a transit transition.
type TransitOptions struct {
	Location       *string
	Notes          *string
	CourierService *string
	TrackingNumber *string
}

// ApplyTransit validates and applies one transit transition, appending the
// history entry. Delivery closes the case: status completed, actual
// completion stamped, transit status cleared (the final history entry keeps
// the delivered marker).
func ApplyTransit(c *domain.Case, to domain.TransitStatus, opts TransitOptions, now time.Time) error {
	if c.Status != domain.StatusInTransit || c.TransitStatus == nil {
		return domain.InvalidTransitTransitionError{CaseID: c.CaseID, To: to}
	}
	from := *c.TransitStatus
	if !TransitReachable(from, to) {
		return domain.InvalidTransitTransitionError{CaseID: c.CaseID, From: from, To: to}
	}

	location := c.CurrentLocation
	if opts.Location != nil {
		location = *opts.Location
		c.CurrentLocation = location
	}
	if opts.CourierService != nil {
		c.CourierService = opts.CourierService
	}
	if opts.TrackingNumber != nil {
		c.TrackingNumber = opts.TrackingNumber
	}

	c.TransitHistory = append(c.TransitHistory, domain.TransitEvent{
		Timestamp: now,
		Location:  location,
		Status:    to,
		Notes:     opts.Notes,
	})

	if to == domain.TransitDelivered {
		c.Status = domain.StatusCompleted
		c.TransitStatus = nil
		completed := now
		c.ActualCompletion = &completed
		return nil
	}
	status := to
	c.TransitStatus = &status
	return nil
}

// ReplayTransitHistory reconstructs the latest transit status from an
// append-only history log. ok is false for an empty log.
func ReplayTransitHistory(history []domain.TransitEvent) (domain.TransitStatus, bool) {
	if len(history) == 0 {
		return "", false
	}
	return history[len(history)-1].Status, true
}
