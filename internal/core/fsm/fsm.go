// Package fsm holds the pure payment state machine: the legal transition
// relation and the entry action each transition implies. All side effects
// (persistence, acquirer calls, webhooks) live in the coordinator.
package fsm

import (
	"fmt"

	"acquiring-gateway/internal/core/domain"
)

// Event is a stimulus applied to a payment's current status.
type Event string

const (
	EventAccept          Event = "ACCEPT"            // init accepted, payment persisted
	EventShowForm        Event = "SHOW_FORM"         // customer fetched payment form
	EventSubmitCard      Event = "SUBMIT_CARD"       // card data submitted
	Event3DSRequired     Event = "3DS_REQUIRED"      // acquirer demands 3-DS
	Event3DSComplete     Event = "3DS_COMPLETE"      // challenge finished, result pending
	EventAuthSuccess     Event = "AUTH_SUCCESS"      // acquirer authorized
	EventAuthFailure     Event = "AUTH_FAILURE"      // acquirer declined
	EventConfirm         Event = "CONFIRM"           // capture requested
	EventConfirmSettled  Event = "CONFIRM_SETTLED"   // capture acknowledged
	EventCancel          Event = "CANCEL"            // cancel before authorization
	EventCancelSettled   Event = "CANCEL_SETTLED"    // cancel acknowledged
	EventReverse         Event = "REVERSE"           // cancel after authorization
	EventReverseSettled  Event = "REVERSE_SETTLED"   // reversal acknowledged
	EventRefund          Event = "REFUND"            // refund requested
	EventRefundedFull    Event = "REFUNDED_FULL"     // refunds now equal confirmed amount
	EventRefundedPartial Event = "REFUNDED_PARTIAL"  // refunds below confirmed amount
	EventReject          Event = "REJECT"            // gateway rejected the intent
	EventDeadline        Event = "DEADLINE"          // now > payment.expires
	EventUnrecoverable   Event = "UNRECOVERABLE"     // terminal acquirer error
)

// Action names the side effect the coordinator must run on entering a state.
type Action string

const (
	ActionNone             Action = ""
	ActionAcquirerAuth     Action = "ACQUIRER_AUTHORIZE"
	ActionAcquirerCapture  Action = "ACQUIRER_CAPTURE"
	ActionAcquirerCancel   Action = "ACQUIRER_CANCEL"
	ActionAcquirerReverse  Action = "ACQUIRER_REVERSE"
	ActionAcquirerRefund   Action = "ACQUIRER_REFUND"
	ActionNotify           Action = "NOTIFY" // enqueue merchant webhook
)

// Result is the outcome of a successful proposal.
type Result struct {
	Next   domain.PaymentStatus
	Action Action
}

// IllegalTransitionError reports a rejected proposal.
type IllegalTransitionError struct {
	From  domain.PaymentStatus
	Event Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s on %s", e.Event, e.From)
}

type edge struct {
	from  domain.PaymentStatus
	event Event
}

// transitions is the full legal-edge relation. Statuses absent for an event
// make the proposal illegal.
var transitions = map[edge]Result{
	{domain.StatusInit, EventAccept}: {domain.StatusNew, ActionNone},

	{domain.StatusNew, EventShowForm}: {domain.StatusFormShowed, ActionNone},

	{domain.StatusNew, EventSubmitCard}:        {domain.StatusAuthorizing, ActionAcquirerAuth},
	{domain.StatusFormShowed, EventSubmitCard}: {domain.StatusAuthorizing, ActionAcquirerAuth},

	{domain.StatusAuthorizing, Event3DSRequired}: {domain.Status3DSChecking, ActionNone},
	{domain.Status3DSChecking, Event3DSComplete}: {domain.Status3DSChecked, ActionNone},

	{domain.StatusAuthorizing, EventAuthSuccess}: {domain.StatusAuthorized, ActionNotify},
	{domain.Status3DSChecked, EventAuthSuccess}:  {domain.StatusAuthorized, ActionNotify},
	{domain.StatusAuthorizing, EventAuthFailure}: {domain.StatusAuthFail, ActionNotify},
	{domain.Status3DSChecked, EventAuthFailure}:  {domain.StatusAuthFail, ActionNotify},

	{domain.StatusAuthorized, EventConfirm}:        {domain.StatusConfirming, ActionAcquirerCapture},
	{domain.StatusConfirming, EventConfirmSettled}: {domain.StatusConfirmed, ActionNotify},

	{domain.StatusNew, EventCancel}:               {domain.StatusCancelling, ActionAcquirerCancel},
	{domain.StatusFormShowed, EventCancel}:        {domain.StatusCancelling, ActionAcquirerCancel},
	{domain.StatusCancelling, EventCancelSettled}: {domain.StatusCancelled, ActionNotify},

	{domain.StatusAuthorized, EventReverse}:       {domain.StatusReversing, ActionAcquirerReverse},
	{domain.StatusReversing, EventReverseSettled}: {domain.StatusReversed, ActionNotify},

	{domain.StatusConfirmed, EventRefund}:       {domain.StatusRefunding, ActionAcquirerRefund},
	{domain.StatusPartialRefunded, EventRefund}: {domain.StatusRefunding, ActionAcquirerRefund},

	{domain.StatusRefunding, EventRefundedFull}:    {domain.StatusRefunded, ActionNotify},
	{domain.StatusRefunding, EventRefundedPartial}: {domain.StatusPartialRefunded, ActionNotify},

	{domain.StatusNew, EventReject}:        {domain.StatusRejected, ActionNotify},
	{domain.StatusFormShowed, EventReject}: {domain.StatusRejected, ActionNotify},
}

// Propose evaluates one event against the current status. It is pure: the
// caller persists the next status and runs the entry action.
func Propose(current domain.PaymentStatus, event Event) (Result, error) {
	// Deadline expiry and unrecoverable failure apply from every
	// non-terminal state rather than per-edge.
	switch event {
	case EventDeadline:
		if current.IsTerminal() {
			return Result{}, &IllegalTransitionError{From: current, Event: event}
		}
		return Result{Next: domain.StatusDeadlineExpired, Action: ActionNotify}, nil
	case EventUnrecoverable:
		if current.IsTerminal() {
			return Result{}, &IllegalTransitionError{From: current, Event: event}
		}
		return Result{Next: domain.StatusFailed, Action: ActionNotify}, nil
	}

	res, ok := transitions[edge{from: current, event: event}]
	if !ok {
		return Result{}, &IllegalTransitionError{From: current, Event: event}
	}
	return res, nil
}

// CanApply reports whether event is legal from current without computing the result.
func CanApply(current domain.PaymentStatus, event Event) bool {
	_, err := Propose(current, event)
	return err == nil
}

// ValidPath reports whether the given status sequence is a connected walk
// through the transition relation, starting at the first element.
func ValidPath(path []domain.PaymentStatus) bool {
	for i := 1; i < len(path); i++ {
		if !reachable(path[i-1], path[i]) {
			return false
		}
	}
	return true
}

func reachable(from, to domain.PaymentStatus) bool {
	if to == domain.StatusDeadlineExpired || to == domain.StatusFailed {
		return !from.IsTerminal()
	}
	for e, r := range transitions {
		if e.from == from && r.Next == to {
			return true
		}
	}
	return false
}
