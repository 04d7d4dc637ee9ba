package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

type cartWriter interface {
	UpdateAddress(ctx context.Context, addressID types.Code) (*types.Cart, error)
	UpdatePaymentMethod(ctx context.Context, method enums.PaymentMethod) (*types.Cart, error)
	View() cart.View
	Clear()
}

type orderPlacer interface {
	Place(ctx context.Context, idempotencyKey string) (*types.Order, error)
}

// Snapshot is a copy of the machine's state for rendering.
type Snapshot struct {
	Step                  enums.CheckoutStep
	SelectedAddressID     types.Code
	SelectedPaymentMethod enums.PaymentMethod
	Notes                 string
	Submitting            bool
	Order                 *types.Order
}

// Machine drives ADDRESS -> PAYMENT -> REVIEW -> SUBMITTED. Every forward
// step writes its choice to the server cart and advances only once that
// write succeeds. Backward steps never touch the network.
type Machine struct {
	cart    cartWriter
	orders  orderPlacer
	logg    *logger.Logger
	metrics *metrics.ClientMetrics

	// forward serializes server writes of forward transitions.
	forward sync.Mutex

	mu             sync.Mutex
	step           enums.CheckoutStep
	submitting     bool
	addressID      types.Code
	paymentMethod  enums.PaymentMethod
	notes          string
	idempotencyKey string
	order          *types.Order
}

// MachineParams bundles the dependencies required to build a checkout.
type MachineParams struct {
	Cart    cartWriter
	Orders  orderPlacer
	Logger  *logger.Logger
	Metrics *metrics.ClientMetrics
}

// NewMachine starts a checkout at ADDRESS. Address and payment method already
// persisted on the server cart are preselected so an earlier attempt resumes.
func NewMachine(params MachineParams) (*Machine, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart is required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order placer is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	m := &Machine{
		cart:    params.Cart,
		orders:  params.Orders,
		logg:    logg,
		metrics: params.Metrics,
		step:    enums.CheckoutStepAddress,
	}
	view := params.Cart.View()
	m.addressID = view.DeliveryAddressID
	if view.PaymentMethod != nil && view.PaymentMethod.IsValid() {
		m.paymentMethod = *view.PaymentMethod
	}
	return m, nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Step:                  m.step,
		SelectedAddressID:     m.addressID,
		SelectedPaymentMethod: m.paymentMethod,
		Notes:                 m.notes,
		Submitting:            m.submitting,
		Order:                 m.order,
	}
}

// SelectAddress records the address choice locally. Nothing is sent until
// ConfirmAddress.
func (m *Machine) SelectAddress(addressID types.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != enums.CheckoutStepAddress {
		return stepConflict(m.step, "select an address")
	}
	m.addressID = addressID
	return nil
}

// SelectPaymentMethod records the payment choice locally.
func (m *Machine) SelectPaymentMethod(method enums.PaymentMethod) error {
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != enums.CheckoutStepPayment {
		return stepConflict(m.step, "select a payment method")
	}
	m.paymentMethod = method
	return nil
}

// SetNotes stores free-form order notes for the review step.
func (m *Machine) SetNotes(notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step.IsTerminal() {
		return stepConflict(m.step, "edit notes")
	}
	m.notes = notes
	return nil
}

// Next performs the forward transition of the current step.
func (m *Machine) Next(ctx context.Context) error {
	switch m.Snapshot().Step {
	case enums.CheckoutStepAddress:
		return m.ConfirmAddress(ctx)
	case enums.CheckoutStepPayment:
		return m.ConfirmPayment(ctx)
	case enums.CheckoutStepReview:
		_, err := m.Submit(ctx)
		return err
	default:
		return stepConflict(m.Snapshot().Step, "advance")
	}
}

// ConfirmAddress writes the selected address to the server cart and moves to
// PAYMENT. Without a selection it fails locally.
func (m *Machine) ConfirmAddress(ctx context.Context) error {
	m.forward.Lock()
	defer m.forward.Unlock()

	m.mu.Lock()
	step, addressID := m.step, m.addressID
	m.mu.Unlock()

	if step != enums.CheckoutStepAddress {
		return stepConflict(step, "confirm the address")
	}
	if addressID.IsZero() {
		m.metrics.IncCheckoutTransition(enums.CheckoutStepPayment.String(), false)
		return pkgerrors.New(pkgerrors.CodeValidation, "select a delivery address first")
	}

	if _, err := m.cart.UpdateAddress(ctx, addressID); err != nil {
		m.metrics.IncCheckoutTransition(enums.CheckoutStepPayment.String(), false)
		return err
	}
	return m.advance(ctx, enums.CheckoutStepAddress, enums.CheckoutStepPayment)
}

// ConfirmPayment writes the selected payment method and moves to REVIEW.
func (m *Machine) ConfirmPayment(ctx context.Context) error {
	m.forward.Lock()
	defer m.forward.Unlock()

	m.mu.Lock()
	step, method := m.step, m.paymentMethod
	m.mu.Unlock()

	if step != enums.CheckoutStepPayment {
		return stepConflict(step, "confirm the payment method")
	}
	if !method.IsValid() {
		m.metrics.IncCheckoutTransition(enums.CheckoutStepReview.String(), false)
		return pkgerrors.New(pkgerrors.CodeValidation, "select a payment method first")
	}

	if _, err := m.cart.UpdatePaymentMethod(ctx, method); err != nil {
		m.metrics.IncCheckoutTransition(enums.CheckoutStepReview.String(), false)
		return err
	}
	return m.advance(ctx, enums.CheckoutStepPayment, enums.CheckoutStepReview)
}

// Submit places the order. A second call while one is in flight is rejected
// with ErrSubmitInFlight without reaching the backend. Retries after a
// failure reuse the same idempotency key.
func (m *Machine) Submit(ctx context.Context) (*types.Order, error) {
	m.mu.Lock()
	if m.submitting {
		m.mu.Unlock()
		return nil, pkgerrors.ErrSubmitInFlight
	}
	step := m.step
	if step != enums.CheckoutStepReview {
		m.mu.Unlock()
		return nil, stepConflict(step, "submit")
	}
	m.submitting = true
	if m.idempotencyKey == "" {
		m.idempotencyKey = orders.NewIdempotencyKey()
	}
	key := m.idempotencyKey
	m.mu.Unlock()

	order, err := m.place(ctx, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitting = false
	if err != nil {
		return nil, err
	}
	if m.step != enums.CheckoutStepReview {
		// Back and Abandon are refused while submitting, so this only trips
		// if that guard is broken.
		m.logg.Warn(m.logg.WithField(ctx, "order_code", order.Code), "checkout left review while the order was placed")
		return order, stepConflict(m.step, "complete the submission")
	}
	m.step = enums.CheckoutStepSubmitted
	m.order = order
	m.idempotencyKey = ""

	m.metrics.IncCheckoutTransition(enums.CheckoutStepSubmitted.String(), true)
	m.logg.Info(m.logg.WithField(ctx, "order_code", order.Code), "order placed")
	return order, nil
}

// place runs the network part of Submit without holding the state lock.
func (m *Machine) place(ctx context.Context, key string) (*types.Order, error) {
	if m.cart.View().IsEmpty() {
		m.metrics.IncCheckoutTransition(enums.CheckoutStepSubmitted.String(), false)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	ctx = m.logg.WithCheckoutStep(ctx, enums.CheckoutStepSubmitted.String())
	order, err := m.orders.Place(ctx, key)
	if err != nil {
		m.metrics.IncCheckoutTransition(enums.CheckoutStepSubmitted.String(), false)
		m.logg.Warn(m.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "order placement failed")
		return nil, err
	}

	// The backend consumed the cart; drop the local copy right away.
	m.cart.Clear()
	return order, nil
}

// Back moves one step backwards without any backend call. Choices already
// written to the server cart stay there.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prev enums.CheckoutStep
	switch m.step {
	case enums.CheckoutStepPayment:
		prev = enums.CheckoutStepAddress
	case enums.CheckoutStepReview:
		prev = enums.CheckoutStepPayment
	default:
		return stepConflict(m.step, "go back")
	}
	if m.submitting {
		return pkgerrors.ErrSubmitInFlight
	}
	m.step = prev
	return nil
}

// Abandon ends the checkout before submission. No rollback call is made.
func (m *Machine) Abandon() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting {
		return pkgerrors.ErrSubmitInFlight
	}
	if !m.step.CanTransitionTo(enums.CheckoutStepAbandoned) {
		return stepConflict(m.step, "abandon")
	}
	m.step = enums.CheckoutStepAbandoned
	return nil
}

// advance moves from -> to unless the user navigated away while the write
// was in flight.
func (m *Machine) advance(ctx context.Context, from, to enums.CheckoutStep) error {
	m.mu.Lock()
	if m.step != from {
		current := m.step
		m.mu.Unlock()
		m.metrics.IncCheckoutTransition(to.String(), false)
		return stepConflict(current, "advance to "+to.String())
	}
	m.step = to
	m.mu.Unlock()

	m.metrics.IncCheckoutTransition(to.String(), true)
	m.logg.Debug(m.logg.WithCheckoutStep(ctx, to.String()), "checkout advanced")
	return nil
}

func stepConflict(step enums.CheckoutStep, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s at step %s", action, step))
}
