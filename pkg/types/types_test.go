package types

import (
	"encoding/json"
	"testing"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
)

func TestCodeAcceptsNumberOrString(t *testing.T) {
	var payload struct {
		A Code `json:"a"`
		B Code `json:"b"`
		C Code `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":42,"b":"p-1","c":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A != "42" || payload.B != "p-1" || !payload.C.IsZero() {
		t.Fatalf("unexpected codes %+v", payload)
	}
	if err := json.Unmarshal([]byte(`{"a":true}`), &payload); err == nil {
		t.Fatal("expected boolean code to be rejected")
	}
}

func TestMoneyWireFormat(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`19.90`), &m); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if !m.Equal(MustMoney("19.9")) {
		t.Fatalf("unexpected money %s", m)
	}
	if err := json.Unmarshal([]byte(`"5.25"`), &m); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	out, err := json.Marshal(MustMoney("5.25"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "5.25" {
		t.Fatalf("expected bare number, got %s", out)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	base := MustMoney("2.50")
	if !base.Times(3).Equal(MustMoney("7.5")) {
		t.Fatalf("expected 7.5, got %s", base.Times(3))
	}
	if !base.Plus(MustMoney("0.5")).Equal(MustMoney("3")) {
		t.Fatalf("unexpected sum")
	}
}

func TestCartDecodesBackendShape(t *testing.T) {
	raw := `{
		"id": 7,
		"code": "c-100",
		"totalPrice": 25,
		"paymentMethod": "WIRE_TRANSFER",
		"address": {"id": 3, "street": "Main 1", "city": "Izmir", "country": "TR"},
		"entries": [
			{"code": "e-1", "product": {"code": "p-1", "name": "Tea", "price": 5}, "quantity": 5, "basePrice": 5, "totalPrice": 25}
		]
	}`
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		t.Fatalf("unmarshal cart: %v", err)
	}
	if cart.ID != "7" || cart.Code != "c-100" {
		t.Fatalf("unexpected identifiers %q %q", cart.ID, cart.Code)
	}
	if cart.PaymentMethod == nil || *cart.PaymentMethod != enums.PaymentMethodWireTransfer {
		t.Fatalf("unexpected payment method %v", cart.PaymentMethod)
	}
	if cart.DeliveryAddressID() != "3" {
		t.Fatalf("unexpected address id %q", cart.DeliveryAddressID())
	}
	entry, ok := cart.EntryForProduct("p-1")
	if !ok || !entry.Consistent() {
		t.Fatalf("expected consistent entry for p-1, got %+v", entry)
	}
	if _, ok := cart.EntryForProduct("p-2"); ok {
		t.Fatal("did not expect entry for p-2")
	}
}

func TestCartEmptiness(t *testing.T) {
	var missing *Cart
	if !missing.IsEmpty() {
		t.Fatal("nil cart should be empty")
	}
	if !(&Cart{Code: "c"}).IsEmpty() {
		t.Fatal("cart without entries should be empty")
	}
}

func TestAddressSummary(t *testing.T) {
	a := Address{Street: " Main 1 ", City: "Izmir", Country: "TR"}
	if got := a.Summary(); got != "Main 1, Izmir, TR" {
		t.Fatalf("unexpected summary %q", got)
	}
}
