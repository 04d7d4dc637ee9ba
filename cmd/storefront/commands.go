package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-storefront/internal/auth"
	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/internal/transport"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

type options struct {
	cmd      string
	email    string
	password string
	name     string
	product  string
	entry    string
	quantity int
	address  string
	payment  string
	order    string
}

type app struct {
	auth   *auth.Service
	cart   *cart.Synchronizer
	orders *orders.Client
	api    *transport.Client
	logg   *logger.Logger
	out    io.Writer
}

func (a *app) run(ctx context.Context, opts options) error {
	switch opts.cmd {
	case "register":
		identity, err := a.auth.Register(ctx, types.RegisterRequest{
			FullName: opts.name, Email: opts.email, Password: opts.password, KVKKConsent: true,
		})
		if err != nil {
			return err
		}
		return a.print(identity)
	case "login":
		identity, err := a.auth.Login(ctx, types.LoginRequest{Email: opts.email, Password: opts.password})
		if err != nil {
			return err
		}
		return a.print(identity)
	case "logout":
		return a.auth.Logout(ctx)
	case "whoami":
		identity, ok, err := a.auth.Current(ctx)
		if err != nil {
			return err
		}
		if !ok {
			_, err := fmt.Fprintln(a.out, "signed out")
			return err
		}
		return a.print(identity)
	case "cart":
		if _, err := a.cart.Fetch(ctx); err != nil {
			return err
		}
		return a.print(a.cart.View())
	case "add":
		if _, err := a.cart.Add(ctx, types.Code(opts.product), opts.quantity); err != nil {
			return err
		}
		return a.print(a.cart.View())
	case "update":
		if _, err := a.cart.UpdateQuantity(ctx, opts.entry, types.Code(opts.product), opts.quantity); err != nil {
			return err
		}
		return a.print(a.cart.View())
	case "remove":
		if _, err := a.cart.Remove(ctx, opts.entry); err != nil {
			return err
		}
		return a.print(a.cart.View())
	case "checkout":
		return a.checkout(ctx, opts)
	case "orders":
		list, err := a.orders.ListMine(ctx, opts.email)
		if err != nil {
			return err
		}
		return a.print(list)
	case "order":
		order, err := a.orders.Get(ctx, opts.order)
		if err != nil {
			return err
		}
		return a.print(order)
	case "cancel":
		order, err := a.orders.RequestStatus(ctx, opts.order, enums.OrderStatusCanceled)
		if err != nil {
			return err
		}
		return a.print(order)
	default:
		return fmt.Errorf("unknown command %q", opts.cmd)
	}
}

// checkout walks the whole flow in one go. Address and payment default to
// what the server cart already carries.
func (a *app) checkout(ctx context.Context, opts options) error {
	if _, err := a.cart.Fetch(ctx); err != nil {
		return err
	}
	m, err := checkout.NewMachine(checkout.MachineParams{Cart: a.cart, Orders: a.orders, Logger: a.logg})
	if err != nil {
		return err
	}

	if opts.address != "" {
		if err := m.SelectAddress(types.Code(opts.address)); err != nil {
			return err
		}
	} else if m.Snapshot().SelectedAddressID.IsZero() {
		addresses, err := a.addresses(ctx)
		if err != nil {
			return err
		}
		if len(addresses) > 0 {
			if err := m.SelectAddress(addresses[0].ID); err != nil {
				return err
			}
		}
	}
	if err := m.Next(ctx); err != nil {
		return err
	}

	if opts.payment != "" {
		method, err := enums.ParsePaymentMethod(strings.ToUpper(opts.payment))
		if err != nil {
			return err
		}
		if err := m.SelectPaymentMethod(method); err != nil {
			return err
		}
	}
	if err := m.Next(ctx); err != nil {
		return err
	}

	order, err := m.Submit(ctx)
	if err != nil {
		return err
	}
	return a.print(order)
}

func (a *app) addresses(ctx context.Context) ([]types.Address, error) {
	var out []types.Address
	err := a.api.DoJSON(ctx, transport.Request{Method: http.MethodGet, Path: "/addresses"}, &out)
	return out, err
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
