package enums

import "fmt"

// CheckoutStep is a state of the client-side checkout flow.
type CheckoutStep string

const (
	CheckoutStepAddress   CheckoutStep = "ADDRESS"
	CheckoutStepPayment   CheckoutStep = "PAYMENT"
	CheckoutStepReview    CheckoutStep = "REVIEW"
	CheckoutStepSubmitted CheckoutStep = "SUBMITTED"
	CheckoutStepAbandoned CheckoutStep = "ABANDONED"
)

var validCheckoutSteps = []CheckoutStep{
	CheckoutStepAddress,
	CheckoutStepPayment,
	CheckoutStepReview,
	CheckoutStepSubmitted,
	CheckoutStepAbandoned,
}

// String implements fmt.Stringer.
func (c CheckoutStep) String() string {
	return string(c)
}

// IsTerminal reports whether no further transition is possible.
func (c CheckoutStep) IsTerminal() bool {
	return c == CheckoutStepSubmitted || c == CheckoutStepAbandoned
}

var checkoutTransitions = map[CheckoutStep][]CheckoutStep{
	CheckoutStepAddress: {CheckoutStepPayment, CheckoutStepAbandoned},
	CheckoutStepPayment: {CheckoutStepReview, CheckoutStepAddress, CheckoutStepAbandoned},
	CheckoutStepReview:  {CheckoutStepSubmitted, CheckoutStepPayment, CheckoutStepAbandoned},
}

// CanTransitionTo reports whether next is reachable from c in one step.
func (c CheckoutStep) CanTransitionTo(next CheckoutStep) bool {
	for _, candidate := range checkoutTransitions[c] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsValid reports whether the value is a known CheckoutStep.
func (c CheckoutStep) IsValid() bool {
	for _, candidate := range validCheckoutSteps {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckoutStep converts raw input into a CheckoutStep.
func ParseCheckoutStep(value string) (CheckoutStep, error) {
	for _, candidate := range validCheckoutSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout step %q", value)
}
