package mockapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	pkgauth "github.com/angelmondragon/packfinderz-storefront/pkg/auth"
	refreshsession "github.com/angelmondragon/packfinderz-storefront/pkg/auth/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/security"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

const defaultPrincipalHeader = "X-Customer-Id"

type customer struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Addresses    []types.Address
}

type orderRecord struct {
	customerID string
	order      types.Order
}

// Params configures a mock backend.
type Params struct {
	Logger          *logger.Logger
	Tokens          pkgauth.TokenConfig
	Refresh         *refreshsession.Manager
	PrincipalHeader string
	Catalog         []types.Product
	// PasswordParams defaults to security.DefaultParams.
	PasswordParams security.ArgonParams
}

// Server is an in-memory storefront backend: accounts, JWT sessions with
// rotating refresh tokens, per-customer carts and orders.
type Server struct {
	logg            *logger.Logger
	tokens          pkgauth.TokenConfig
	refresh         *refreshsession.Manager
	principalHeader string
	passwordParams  security.ArgonParams
	now             func() time.Time

	mu          sync.Mutex
	customers   map[string]*customer // keyed by lower-cased email
	customersID map[string]*customer
	carts       map[string]*types.Cart
	orders      map[string]*orderRecord
	orderSeq    []string
	placements  map[string]string // customer|idempotency key -> order code
	catalog     map[types.Code]types.Product
	activeJTIs  map[string]string
	nextID      int

	forcedUnauthorized atomic.Int32
	failRefresh        atomic.Bool
	refreshDelay       atomic.Int64
	refreshCalls       atomic.Int32
	placeCalls         atomic.Int32
}

// NewServer builds a mock backend.
func NewServer(params Params) (*Server, error) {
	if params.Refresh == nil {
		return nil, fmt.Errorf("refresh token manager is required")
	}
	if params.Tokens.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if params.Tokens.TTL <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	header := strings.TrimSpace(params.PrincipalHeader)
	if header == "" {
		header = defaultPrincipalHeader
	}
	catalog := params.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	passwordParams := params.PasswordParams
	if passwordParams == (security.ArgonParams{}) {
		passwordParams = security.DefaultParams
	}

	s := &Server{
		logg:            logg,
		tokens:          params.Tokens,
		refresh:         params.Refresh,
		principalHeader: header,
		passwordParams:  passwordParams,
		now:             time.Now,
		customers:       map[string]*customer{},
		customersID:     map[string]*customer{},
		carts:           map[string]*types.Cart{},
		orders:          map[string]*orderRecord{},
		placements:      map[string]string{},
		catalog:         map[types.Code]types.Product{},
		activeJTIs:      map[string]string{},
		nextID:          1000,
	}
	for _, p := range catalog {
		s.catalog[p.Code] = p
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logg))
	r.Use(requestID(s.logg))
	r.Use(logging(s.logg))
	r.Use(corsPolicy(s.principalHeader))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, map[string]string{"status": "ok"})
	})
	r.Get("/products", s.handleProducts)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/addresses", s.handleAddresses)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.handleGetCart)
			r.Post("/add", s.handleAddToCart)
			r.Put("/update", s.handleUpdateCart)
			r.Delete("/remove/{code}", s.handleRemoveFromCart)
			r.Put("/update/address/{id}", s.handleUpdateCartAddress)
			r.Put("/update/payment/{method}", s.handleUpdateCartPayment)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.handlePlaceOrder)
			r.Post("/checkout", s.handlePlaceOrder)
			r.Get("/customer", s.handleListOrders)
			r.Get("/{code}", s.handleGetOrder)
			r.Put("/{code}/status", s.handleOrderStatus)
		})
	})
	return r
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeJTIs = map[string]string{}
}

// ForceUnauthorized answers the next n authenticated requests with 401.
func (s *Server) ForceUnauthorized(n int) {
	s.forcedUnauthorized.Store(int32(n))
}

// FailRefresh makes every refresh attempt fail with 401 while set.
func (s *Server) FailRefresh(fail bool) {
	s.failRefresh.Store(fail)
}

// SetRefreshDelay slows the refresh endpoint down.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// RefreshCalls reports how many refresh requests reached the server.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// PlaceCalls reports how many order placement requests reached the server.
func (s *Server) PlaceCalls() int {
	return int(s.placeCalls.Load())
}

// OrderCount reports how many distinct orders exist.
func (s *Server) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Server) consumeForcedUnauthorized() bool {
	for {
		n := s.forcedUnauthorized.Load()
		if n <= 0 {
			return false
		}
		if s.forcedUnauthorized.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (s *Server) tokenActive(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.activeJTIs[jti]
	return ok
}

func (s *Server) nextIDLocked() string {
	s.nextID++
	return fmt.Sprintf("%d", s.nextID)
}

// NewInMemory builds a mock backend whose refresh tokens live in process
// memory. Used by cmd/mock-api without Redis and by integration tests.
func NewInMemory(logg *logger.Logger) (*Server, error) {
	manager, err := refreshsession.NewManager(refreshsession.NewMemoryStore(), 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return NewServer(Params{
		Logger:  logg,
		Tokens:  pkgauth.TokenConfig{Secret: "mock-secret", Issuer: "storefront-mock", TTL: 15 * time.Minute},
		Refresh: manager,
	})
}
