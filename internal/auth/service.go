package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/internal/transport"
	pkgauth "github.com/angelmondragon/packfinderz-storefront/pkg/auth"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/angelmondragon/packfinderz-storefront/pkg/validators"
	"go.uber.org/multierr"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	logoutPath   = "/auth/logout"
)

type requester interface {
	DoJSON(ctx context.Context, req transport.Request, out any) error
	PrincipalHeader() string
}

// Identity describes the signed-in principal.
type Identity struct {
	PrincipalID string
	Email       string
	FullName    string
	ExpiresAt   time.Time
}

// Service establishes and tears down the session.
type Service struct {
	api   requester
	store session.Store
	logg  *logger.Logger
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	API    requester
	Store  session.Store
	Logger *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.API == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{api: params.API, store: params.Store, logg: logg}, nil
}

// Login exchanges credentials for a session. On failure the store is left
// exactly as it was.
func (s *Service) Login(ctx context.Context, req types.LoginRequest) (*Identity, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	return s.establish(ctx, loginPath, req)
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req types.RegisterRequest) (*Identity, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	return s.establish(ctx, registerPath, req)
}

func (s *Service) establish(ctx context.Context, path string, body any) (*Identity, error) {
	var resp types.AuthResponse
	err := s.api.DoJSON(ctx, transport.Request{
		Method:    http.MethodPost,
		Path:      path,
		Body:      body,
		Anonymous: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sess := transport.SessionFromAuth(resp, session.Session{})
	if err := s.store.Set(ctx, sess); err != nil {
		return nil, err
	}

	identity := identityFor(sess)
	identity.Email = resp.Email
	identity.FullName = resp.FullName
	s.logg.Info(s.logg.WithPrincipalID(ctx, sess.PrincipalID), "signed in")
	return identity, nil
}

// Logout asks the backend to end the server-side session, presenting both
// tokens, and clears the local session. The local clear happens whatever the
// backend answers; the returned error combines both outcomes.
func (s *Service) Logout(ctx context.Context) error {
	sess, ok, err := s.store.Get(ctx)
	if err != nil {
		return multierr.Append(err, s.store.Clear(ctx))
	}
	if !ok {
		return nil
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+sess.AccessToken)
	if sess.PrincipalID != "" {
		headers.Set(s.api.PrincipalHeader(), sess.PrincipalID)
	}
	// Sent anonymously so an expired token does not trigger a refresh just
	// to log out.
	req := transport.Request{
		Method:    http.MethodPost,
		Path:      logoutPath,
		Headers:   headers,
		Anonymous: true,
	}
	if sess.HasRefreshToken() {
		req.Body = types.RefreshRequest{RefreshToken: sess.RefreshToken}
	}
	serverErr := s.api.DoJSON(ctx, req, nil)
	if serverErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", serverErr.Error()), "backend logout failed")
	}

	return multierr.Combine(serverErr, s.store.Clear(ctx))
}

// Current returns the signed-in identity, if any.
func (s *Service) Current(ctx context.Context) (*Identity, bool, error) {
	sess, ok, err := s.store.Get(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return identityFor(sess), true, nil
}

func identityFor(sess session.Session) *Identity {
	identity := &Identity{PrincipalID: sess.PrincipalID}
	if claims, err := pkgauth.InspectAccessToken(sess.AccessToken); err == nil {
		identity.Email = claims.Email
		if claims.ExpiresAt != nil {
			identity.ExpiresAt = claims.ExpiresAt.Time
		}
		if identity.PrincipalID == "" {
			identity.PrincipalID = claims.CustomerID
		}
	}
	return identity
}
