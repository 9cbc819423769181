package checkout

// The checkout workflow is a fixed finite-state machine. Transitions
// live in one table so the flow can be unit-driven directly instead of
// interpreting a declarative workflow document.

type State string

const (
	StateValidateCart   State = "VALIDATE_CART"
	StateProcessPayment State = "PROCESS_PAYMENT"
	StateEnqueueOrder   State = "ENQUEUE_ORDER"
	StateSucceeded      State = "SUCCEEDED"

	StateCartValidationFailed State = "CART_VALIDATION_FAILED"
	StatePaymentFailed        State = "PAYMENT_FAILED"
	StateQueueFailed          State = "QUEUE_FAILED"
)

type Event string

const (
	EventCartValid        Event = "CART_VALID"
	EventCartInvalid      Event = "CART_INVALID"
	EventPaymentSucceeded Event = "PAYMENT_SUCCEEDED"
	EventPaymentFailed    Event = "PAYMENT_FAILED"
	EventEnqueued         Event = "ENQUEUED"
	EventEnqueueFailed    Event = "ENQUEUE_FAILED"
)

var transitions = map[State]map[Event]State{
	StateValidateCart: {
		EventCartValid:   StateProcessPayment,
		EventCartInvalid: StateCartValidationFailed,
	},
	StateProcessPayment: {
		EventPaymentSucceeded: StateEnqueueOrder,
		EventPaymentFailed:    StatePaymentFailed,
	},
	StateEnqueueOrder: {
		EventEnqueued:      StateSucceeded,
		EventEnqueueFailed: StateQueueFailed,
	},
}

// Next returns the state reached from s on event e. ok is false when the
// transition does not exist, which includes every event on a terminal
// state.
func Next(s State, e Event) (State, bool) {
	next, ok := transitions[s][e]
	return next, ok
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
