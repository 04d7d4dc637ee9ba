package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeCart struct {
	mu           sync.Mutex
	view         cart.View
	addressCalls int
	paymentCalls int
	cleared      bool
	failAddress  error
	onAddress    func()
	onView       func()
}

func (f *fakeCart) UpdateAddress(_ context.Context, id types.Code) (*types.Cart, error) {
	f.mu.Lock()
	f.addressCalls++
	fail, hook := f.failAddress, f.onAddress
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail != nil {
		return nil, fail
	}
	f.mu.Lock()
	f.view.DeliveryAddressID = id
	f.mu.Unlock()
	return &types.Cart{}, nil
}

func (f *fakeCart) UpdatePaymentMethod(_ context.Context, method enums.PaymentMethod) (*types.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentCalls++
	f.view.PaymentMethod = &method
	return &types.Cart{}, nil
}

func (f *fakeCart) View() cart.View {
	f.mu.Lock()
	hook := f.onView
	f.onView = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeCart) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.view.Items = nil
}

type fakeOrders struct {
	calls   atomic.Int32
	keys    []string
	mu      sync.Mutex
	release chan struct{}
	entered chan struct{}
	fail    error
}

func (f *fakeOrders) Place(_ context.Context, key string) (*types.Order, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	fail := f.fail
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if fail != nil {
		return nil, fail
	}
	return &types.Order{Code: "ORD-1", Status: enums.OrderStatusReady}, nil
}

func filledCart() *fakeCart {
	return &fakeCart{view: cart.View{Items: []cart.Item{{EntryCode: "e1", ProductCode: "p1", Quantity: 2}}}}
}

func newMachine(t *testing.T, c *fakeCart, o *fakeOrders) *Machine {
	t.Helper()
	m, err := NewMachine(MachineParams{Cart: c, Orders: o})
	require.NoError(t, err)
	return m
}

func walkToReview(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.SelectAddress("7"))
	require.NoError(t, m.Next(ctx))
	require.NoError(t, m.SelectPaymentMethod(enums.PaymentMethodCreditCard))
	require.NoError(t, m.Next(ctx))
	require.Equal(t, enums.CheckoutStepReview, m.Snapshot().Step)
}

func TestNewMachineRequiresDependencies(t *testing.T) {
	_, err := NewMachine(MachineParams{Orders: &fakeOrders{}})
	require.Error(t, err)
	_, err = NewMachine(MachineParams{Cart: filledCart()})
	require.Error(t, err)
}

func TestNewMachinePrefillsFromCart(t *testing.T) {
	c := filledCart()
	method := enums.PaymentMethodWireTransfer
	c.view.DeliveryAddressID = "42"
	c.view.PaymentMethod = &method

	snap := newMachine(t, c, &fakeOrders{}).Snapshot()
	require.Equal(t, enums.CheckoutStepAddress, snap.Step)
	require.Equal(t, types.Code("42"), snap.SelectedAddressID)
	require.Equal(t, method, snap.SelectedPaymentMethod)
}

func TestConfirmAddressWithoutSelectionStaysLocal(t *testing.T) {
	c := filledCart()
	m := newMachine(t, c, &fakeOrders{})

	err := m.Next(context.Background())
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.Equal(t, enums.CheckoutStepAddress, m.Snapshot().Step)
	require.Zero(t, c.addressCalls)
}

func TestConfirmAddressFailureDoesNotAdvance(t *testing.T) {
	c := filledCart()
	c.failAddress = pkgerrors.New(pkgerrors.CodeNetwork, "down")
	m := newMachine(t, c, &fakeOrders{})
	require.NoError(t, m.SelectAddress("7"))

	err := m.ConfirmAddress(context.Background())
	require.Equal(t, pkgerrors.CodeNetwork, pkgerrors.CodeOf(err))
	require.Equal(t, enums.CheckoutStepAddress, m.Snapshot().Step)
}

func TestForwardStepsPersistBeforeAdvancing(t *testing.T) {
	c := filledCart()
	m := newMachine(t, c, &fakeOrders{})
	walkToReview(t, m)

	require.Equal(t, 1, c.addressCalls)
	require.Equal(t, 1, c.paymentCalls)
	require.Equal(t, types.Code("7"), c.View().DeliveryAddressID)
}

func TestSelectionsAreStepBound(t *testing.T) {
	m := newMachine(t, filledCart(), &fakeOrders{})

	err := m.SelectPaymentMethod(enums.PaymentMethodCreditCard)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	err = m.SelectPaymentMethod("CASH")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = m.ConfirmPayment(context.Background())
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestBackMakesNoCalls(t *testing.T) {
	c := filledCart()
	m := newMachine(t, c, &fakeOrders{})
	walkToReview(t, m)

	require.NoError(t, m.Back())
	require.Equal(t, enums.CheckoutStepPayment, m.Snapshot().Step)
	require.NoError(t, m.Back())
	require.Equal(t, enums.CheckoutStepAddress, m.Snapshot().Step)
	require.Error(t, m.Back())
	require.Equal(t, 1, c.addressCalls)
	require.Equal(t, 1, c.paymentCalls)
}

func TestNavigatingAwayDuringWriteDoesNotAdvance(t *testing.T) {
	c := filledCart()
	m := newMachine(t, c, &fakeOrders{})
	require.NoError(t, m.SelectAddress("7"))
	c.onAddress = func() { _ = m.Abandon() }

	err := m.ConfirmAddress(context.Background())
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	require.Equal(t, enums.CheckoutStepAbandoned, m.Snapshot().Step)
}

func TestSubmitPlacesOrderAndClearsCart(t *testing.T) {
	c := filledCart()
	o := &fakeOrders{}
	m := newMachine(t, c, o)
	walkToReview(t, m)
	require.NoError(t, m.SetNotes("leave at the door"))

	order, err := m.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ORD-1", order.Code)

	snap := m.Snapshot()
	require.Equal(t, enums.CheckoutStepSubmitted, snap.Step)
	require.Equal(t, order, snap.Order)
	require.True(t, c.cleared)
	require.Error(t, m.Abandon())
	require.Error(t, m.SetNotes("late"))
}

func TestSubmitOutsideReviewIsRejected(t *testing.T) {
	o := &fakeOrders{}
	m := newMachine(t, filledCart(), o)

	_, err := m.Submit(context.Background())
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	require.Zero(t, o.calls.Load())
}

func TestSubmitEmptyCartIsRejected(t *testing.T) {
	c := filledCart()
	o := &fakeOrders{}
	m := newMachine(t, c, o)
	walkToReview(t, m)
	c.Clear()

	_, err := m.Submit(context.Background())
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.Zero(t, o.calls.Load())
}

func TestConcurrentSubmitIsRejectedLocally(t *testing.T) {
	o := &fakeOrders{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	m := newMachine(t, filledCart(), o)
	walkToReview(t, m)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background())
		done <- err
	}()
	<-o.entered

	require.True(t, m.Snapshot().Submitting)
	_, err := m.Submit(context.Background())
	require.True(t, errors.Is(err, pkgerrors.ErrSubmitInFlight))
	require.True(t, errors.Is(m.Abandon(), pkgerrors.ErrSubmitInFlight))
	require.True(t, errors.Is(m.Back(), pkgerrors.ErrSubmitInFlight))

	close(o.release)
	require.NoError(t, <-done)
	require.Equal(t, int32(1), o.calls.Load())
}

func TestAbandonAsSubmitStartsIsRefused(t *testing.T) {
	c := filledCart()
	o := &fakeOrders{}
	m := newMachine(t, c, o)
	walkToReview(t, m)

	var abandonErr, backErr error
	c.mu.Lock()
	c.onView = func() {
		abandonErr = m.Abandon()
		backErr = m.Back()
	}
	c.mu.Unlock()

	order, err := m.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, errors.Is(abandonErr, pkgerrors.ErrSubmitInFlight))
	require.True(t, errors.Is(backErr, pkgerrors.ErrSubmitInFlight))

	snap := m.Snapshot()
	require.Equal(t, enums.CheckoutStepSubmitted, snap.Step)
	require.Equal(t, order, snap.Order)
	require.False(t, snap.Submitting)
	require.Equal(t, int32(1), o.calls.Load())
}

func TestRetryAfterFailureReusesIdempotencyKey(t *testing.T) {
	o := &fakeOrders{fail: pkgerrors.New(pkgerrors.CodeNetwork, "timeout")}
	m := newMachine(t, filledCart(), o)
	walkToReview(t, m)

	_, err := m.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, enums.CheckoutStepReview, m.Snapshot().Step)

	o.mu.Lock()
	o.fail = nil
	o.mu.Unlock()
	_, err = m.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, o.keys, 2)
	require.NotEmpty(t, o.keys[0])
	require.Equal(t, o.keys[0], o.keys[1])
}

func TestAbandonBeforeSubmit(t *testing.T) {
	m := newMachine(t, filledCart(), &fakeOrders{})
	require.NoError(t, m.Abandon())
	require.Equal(t, enums.CheckoutStepAbandoned, m.Snapshot().Step)
	require.Error(t, m.Next(context.Background()))
}
