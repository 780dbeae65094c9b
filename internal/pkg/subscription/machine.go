package subscription

import (
	"time"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
)

// Event is an input to the subscription state machine.
type Event string

const (
	EventCreate            Event = "create"
	EventPaymentConfirmed  Event = "payment_confirmed"
	EventRenewalCharged    Event = "renewal_charged"
	EventPaymentFailed     Event = "payment_failed"
	EventCancel            Event = "cancel"
	EventProviderCancelled Event = "provider_cancelled"
	EventProviderCompleted Event = "provider_completed"
	EventProviderPaused    Event = "provider_paused"
	EventProviderResumed   Event = "provider_resumed"
	EventExpire            Event = "expire"
)

// ProductEffect is the bulk visibility change that accompanies a transition.
type ProductEffect int

const (
	ProductsUnchanged ProductEffect = iota
	ProductsHide
	ProductsUnhide
)

// Input is the slice of user state the machine looks at.
type Input struct {
	Status  string
	EndDate *time.Time
	Now     time.Time
	// Grace is how long a PAST_DUE subscription survives past its end date.
	Grace time.Duration
	// Renewal marks a failed charge on a running plan.
	Renewal bool
}

// Transition describes what the service has to write.
type Transition struct {
	From     string
	To       string
	Products ProductEffect
	// StartPeriod sets start, end and next billing dates from Now.
	StartPeriod bool
	// RefreshLapsedPeriod starts a new period only when the end date is
	// missing or already passed.
	RefreshLapsedPeriod bool
}

// Changed reports whether the status moves.
func (t Transition) Changed() bool {
	return t.From != t.To
}

func lapsed(end *time.Time, at time.Time) bool {
	return end == nil || !end.After(at)
}

func stay(status string) Transition {
	return Transition{From: status, To: status}
}

// Next is the transition table. It never touches storage; an error means the
// event is not allowed in the current state.
func Next(in Input, ev Event) (Transition, error) {
	s := in.Status
	if s == "" {
		s = models.SubscriptionInactive
	}

	switch ev {
	case EventCreate:
		switch s {
		case models.SubscriptionInactive, models.SubscriptionCancelled:
			return stay(s), nil
		case models.SubscriptionActive:
			if lapsed(in.EndDate, in.Now) {
				return stay(s), nil
			}
			return Transition{}, apperror.StateConflict("subscription is already active")
		case models.SubscriptionPastDue:
			// A paused plan keeps its period; only a lapsed one may be paid again.
			if lapsed(in.EndDate, in.Now) {
				return stay(s), nil
			}
			return Transition{}, apperror.StateConflict("subscription is paused with the provider")
		default:
			return Transition{}, apperror.StateConflict("unknown subscription status %q", s)
		}

	case EventPaymentConfirmed, EventRenewalCharged:
		t := Transition{From: s, To: models.SubscriptionActive, StartPeriod: true}
		if s == models.SubscriptionPastDue || s == models.SubscriptionCancelled {
			t.Products = ProductsUnhide
		}
		return t, nil

	case EventPaymentFailed:
		if in.Renewal && s == models.SubscriptionActive {
			return Transition{From: s, To: models.SubscriptionPastDue}, nil
		}
		return stay(s), nil

	case EventCancel:
		if s != models.SubscriptionActive {
			return Transition{}, apperror.StateConflict("no active subscription to cancel")
		}
		return Transition{From: s, To: models.SubscriptionCancelled, Products: ProductsHide}, nil

	case EventProviderCancelled, EventProviderCompleted:
		if s == models.SubscriptionInactive {
			return Transition{}, apperror.StateConflict("subscription was never activated")
		}
		return Transition{From: s, To: models.SubscriptionCancelled, Products: ProductsHide}, nil

	case EventProviderPaused:
		if s != models.SubscriptionActive {
			return Transition{}, apperror.StateConflict("only active subscriptions can be paused")
		}
		return Transition{From: s, To: models.SubscriptionPastDue}, nil

	case EventProviderResumed:
		switch s {
		case models.SubscriptionPastDue, models.SubscriptionCancelled:
			return Transition{
				From:                s,
				To:                  models.SubscriptionActive,
				Products:            ProductsUnhide,
				RefreshLapsedPeriod: true,
			}, nil
		case models.SubscriptionActive:
			return stay(s), nil
		default:
			return Transition{}, apperror.StateConflict("subscription was never activated")
		}

	case EventExpire:
		switch s {
		case models.SubscriptionActive:
			if lapsed(in.EndDate, in.Now) {
				return Transition{From: s, To: models.SubscriptionPastDue}, nil
			}
		case models.SubscriptionPastDue:
			if lapsed(in.EndDate, in.Now.Add(-in.Grace)) {
				return Transition{From: s, To: models.SubscriptionCancelled, Products: ProductsHide}, nil
			}
		}
		return stay(s), nil
	}

	return Transition{}, apperror.StateConflict("unknown event %q", ev)
}
