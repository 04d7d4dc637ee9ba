package mockapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	pkgauth "github.com/angelmondragon/packfinderz-storefront/pkg/auth"
	refreshsession "github.com/angelmondragon/packfinderz-storefront/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/security"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/angelmondragon/packfinderz-storefront/pkg/validators"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body types.RegisterRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	hash, err := security.HashPassword(body.Password, s.passwordParams)
	if err != nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password"))
		return
	}

	s.mu.Lock()
	if _, exists := s.customers[email]; exists {
		s.mu.Unlock()
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeConflict, "email already registered"))
		return
	}
	c := &customer{
		ID:           s.nextIDLocked(),
		Email:        email,
		FullName:     strings.TrimSpace(body.FullName),
		PasswordHash: hash,
	}
	c.Addresses = []types.Address{
		{ID: types.Code(s.nextIDLocked()), AddressTitle: "Home", Street: "1 Main Street", City: "Istanbul", Country: "TR", PostalCode: "34000"},
		{ID: types.Code(s.nextIDLocked()), AddressTitle: "Office", Street: "42 Market Road", City: "Ankara", Country: "TR", PostalCode: "06000"},
	}
	s.customers[email] = c
	s.customersID[c.ID] = c
	s.mu.Unlock()

	s.writeAuth(w, r, c)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body types.LoginRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}

	s.mu.Lock()
	c, ok := s.customers[strings.ToLower(strings.TrimSpace(body.Email))]
	s.mu.Unlock()

	invalid := pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
	if !ok {
		writeError(r.Context(), s.logg, w, r, invalid)
		return
	}
	match, err := security.VerifyPassword(body.Password, c.PasswordHash)
	if err != nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password"))
		return
	}
	if !match {
		writeError(r.Context(), s.logg, w, r, invalid)
		return
	}
	s.writeAuth(w, r, c)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	var body types.RefreshRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}
	if s.failRefresh.Load() {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "refresh rejected"))
		return
	}

	customerID, next, err := s.refresh.Rotate(r.Context(), body.RefreshToken)
	if err != nil {
		if errors.Is(err, refreshsession.ErrInvalidRefreshToken) {
			writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token"))
			return
		}
		writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate refresh token"))
		return
	}

	s.mu.Lock()
	c, ok := s.customersID[customerID]
	s.mu.Unlock()
	if !ok {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown customer"))
		return
	}

	access, err := s.mintAccess(c)
	if err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}
	writeSuccess(w, types.AuthResponse{
		AccessToken:  access,
		RefreshToken: next,
		CustomerID:   c.ID,
		Email:        c.Email,
		FullName:     c.FullName,
	})
}

// handleLogout ends the caller's server-side session: the presented access
// token is retired and every refresh token of the customer it names is
// revoked. An expired access token still identifies the customer. It always
// answers 204 so a client can sign out whatever state its credentials are in.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if token := bearerToken(r); token != "" {
		if claims, err := pkgauth.ParseExpiredAccessToken(s.tokens, token); err == nil {
			s.mu.Lock()
			delete(s.activeJTIs, claims.ID)
			s.mu.Unlock()

			principal := strings.TrimSpace(r.Header.Get(s.principalHeader))
			if principal != "" && principal != claims.CustomerID {
				s.logg.Warn(s.logg.WithPrincipalID(ctx, principal), "logout principal does not match token")
			} else if err := s.refresh.RevokeCustomer(ctx, claims.CustomerID); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "revoke customer refresh tokens failed")
			}
		}
	}

	var body types.RefreshRequest
	if r.ContentLength > 0 {
		if err := validators.DecodeJSONBody(r, &body); err == nil && body.RefreshToken != "" {
			if err := s.refresh.Revoke(ctx, body.RefreshToken); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "revoke refresh token failed")
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeAuth(w http.ResponseWriter, r *http.Request, c *customer) {
	access, err := s.mintAccess(c)
	if err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}
	refresh, err := s.refresh.Generate(r.Context(), c.ID)
	if err != nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue refresh token"))
		return
	}
	writeSuccess(w, types.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		CustomerID:   c.ID,
		Email:        c.Email,
		FullName:     c.FullName,
	})
}

func (s *Server) mintAccess(c *customer) (string, error) {
	token, err := pkgauth.MintAccessToken(s.tokens, s.now(), c.ID, c.Email)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	claims, err := pkgauth.InspectAccessToken(token)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inspect access token")
	}
	s.mu.Lock()
	s.activeJTIs[claims.ID] = c.ID
	s.mu.Unlock()
	return token, nil
}
