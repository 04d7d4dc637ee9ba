package transport

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgauth "github.com/angelmondragon/packfinderz-storefront/pkg/auth"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

const refreshKey = "refresh"

var errNoRefreshToken = pkgerrors.New(pkgerrors.CodeUnauthorized, "no refresh token available")

// refresh returns credentials newer than staleToken. Concurrent callers share
// one in-flight refresh and are released in the order they joined it.
func (c *Client) refresh(ctx context.Context, staleToken string) (session.Session, error) {
	if renewed, ok := c.renewedSince(ctx, staleToken); ok {
		return renewed, nil
	}

	// The shared call must outlive any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan(refreshKey, func() (any, error) {
		return c.doRefresh(flightCtx, staleToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	case <-ctx.Done():
		return session.Session{}, networkError(ctx.Err())
	}
}

// renewedSince reports whether the stored access token already differs from
// the one a request was rejected with, meaning a refresh has completed.
func (c *Client) renewedSince(ctx context.Context, staleToken string) (session.Session, bool) {
	current, ok, err := c.store.Get(ctx)
	if err != nil || !ok || !current.Valid() {
		return session.Session{}, false
	}
	if current.AccessToken == staleToken {
		return session.Session{}, false
	}
	return current, true
}

func (c *Client) doRefresh(ctx context.Context, staleToken string) (session.Session, error) {
	if renewed, ok := c.renewedSince(ctx, staleToken); ok {
		return renewed, nil
	}

	current, ok, err := c.store.Get(ctx)
	if err != nil {
		return session.Session{}, err
	}
	if !ok || !current.HasRefreshToken() {
		c.metrics.IncRefresh(metrics.RefreshMissing)
		return session.Session{}, c.endSession(ctx, errNoRefreshToken)
	}

	c.logg.Info(ctx, "refreshing access token")
	p, err := prepare(Request{
		Method:    http.MethodPost,
		Path:      c.refreshPath,
		Body:      types.RefreshRequest{RefreshToken: current.RefreshToken},
		Anonymous: true,
	})
	if err != nil {
		return session.Session{}, err
	}

	resp, err := c.send(ctx, p, nil)
	if err == nil && !isSuccess(resp.StatusCode) {
		err = responseError(resp)
	}
	var auth types.AuthResponse
	if err == nil {
		err = resp.Decode(&auth)
	}
	if err == nil && auth.AccessToken == "" {
		err = pkgerrors.New(pkgerrors.CodeDependency, "refresh response carried no access token")
	}
	if err != nil {
		c.metrics.IncRefresh(metrics.RefreshFailed)
		return session.Session{}, c.endSession(ctx, err)
	}

	renewed := SessionFromAuth(auth, current)
	if err := c.store.Set(ctx, renewed); err != nil {
		c.metrics.IncRefresh(metrics.RefreshFailed)
		return session.Session{}, c.endSession(ctx, err)
	}
	c.metrics.IncRefresh(metrics.RefreshSucceeded)
	c.logg.Info(ctx, "access token refreshed")
	return renewed, nil
}

// SessionFromAuth builds the session established by an auth response. Values
// the response omits fall back to previous, and the principal id is read from
// the access token as a last resort.
func SessionFromAuth(auth types.AuthResponse, previous session.Session) session.Session {
	renewed := session.Session{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		PrincipalID:  auth.CustomerID,
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = previous.RefreshToken
	}
	if renewed.PrincipalID == "" {
		renewed.PrincipalID = previous.PrincipalID
	}
	if renewed.PrincipalID == "" {
		if claims, err := pkgauth.InspectAccessToken(auth.AccessToken); err == nil {
			renewed.PrincipalID = claims.CustomerID
		}
	}
	return renewed
}
