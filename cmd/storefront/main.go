package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-storefront/internal/auth"
	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/internal/transport"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "whoami", "command: register|login|logout|whoami|cart|add|update|remove|checkout|orders|order|cancel")
	flag.StringVar(&opts.email, "email", "", "account email")
	flag.StringVar(&opts.password, "password", "", "account password")
	flag.StringVar(&opts.name, "name", "", "full name (register)")
	flag.StringVar(&opts.product, "product", "", "product code (add, update)")
	flag.StringVar(&opts.entry, "entry", "", "cart entry code (update, remove)")
	flag.IntVar(&opts.quantity, "qty", 1, "quantity (add, update)")
	flag.StringVar(&opts.address, "address", "", "delivery address id (checkout)")
	flag.StringVar(&opts.payment, "payment", "", "payment method (checkout)")
	flag.StringVar(&opts.order, "order", "", "order code (order, cancel)")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	store, closeStore, err := session.Open(ctx, *cfg, logg)
	requireResource(ctx, logg, "session store", err)
	defer func() {
		if err := closeStore(); err != nil {
			logg.Error(ctx, "error closing session store", err)
		}
	}()

	api, err := transport.New(cfg.API.BaseURL, store,
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithLogger(logg),
		transport.WithMetrics(metrics.NewClientMetrics(prometheus.NewRegistry())),
		transport.WithPrincipalHeader(cfg.API.PrincipalHeader),
		transport.WithUserAgent(cfg.API.UserAgent),
		transport.WithSessionEndedHandler(func(context.Context, error) {
			fmt.Fprintln(os.Stderr, "session ended, please sign in again")
		}),
	)
	requireResource(ctx, logg, "api client", err)

	authService, err := auth.NewService(auth.ServiceParams{API: api, Store: store, Logger: logg})
	requireResource(ctx, logg, "auth service", err)
	synchronizer, err := cart.NewSynchronizer(api, logg)
	requireResource(ctx, logg, "cart synchronizer", err)
	orderClient, err := orders.NewClient(api)
	requireResource(ctx, logg, "order client", err)

	app := &app{
		auth:   authService,
		cart:   synchronizer,
		orders: orderClient,
		api:    api,
		logg:   logg,
		out:    os.Stdout,
	}
	if err := app.run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to initialize "+name, err)
	os.Exit(1)
}
