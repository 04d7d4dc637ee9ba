package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(types.CartEntryRequest{Quantity: 0})
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["product"] != "is required" {
		t.Fatalf("unexpected product message %q", details["product"])
	}
	if details["quantity"] != "must be at least 1" {
		t.Fatalf("unexpected quantity message %q", details["quantity"])
	}
}

func TestStructAcceptsValidPayload(t *testing.T) {
	if err := Struct(types.LoginRequest{Email: "a@b.co", Password: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Struct(types.LoginRequest{Email: "nope", Password: "x"}); err == nil {
		t.Fatal("expected invalid email to fail")
	}
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/cart/add", strings.NewReader(`{"product":"p-1","quantity":2}`))
	var body types.CartEntryRequest
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Product != "p-1" || body.Quantity != 2 {
		t.Fatalf("unexpected body %+v", body)
	}

	req = httptest.NewRequest("POST", "/cart/add", strings.NewReader(`{"unknown":1}`))
	if err := DecodeJSONBody(req, &body); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected unknown field to be rejected, got %v", err)
	}
}
