package transport

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

// Do executes req and returns the response of a 2xx exchange. Every other
// outcome is a *pkgerrors.Error. A 401 on an authenticated request triggers
// at most one refresh and one replay; a 403 is returned as-is.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}
	ctx = c.logg.WithRequestID(ctx, p.requestID)

	if p.Anonymous {
		resp, err := c.send(ctx, p, nil)
		if err != nil {
			return nil, err
		}
		return result(resp)
	}

	creds, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, p, creds)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return result(resp)
	}

	sentToken := ""
	if creds != nil {
		sentToken = creds.AccessToken
	}
	renewed, err := c.refresh(ctx, sentToken)
	if err != nil {
		return nil, err
	}

	c.metrics.IncReplay()
	resp, err = c.send(ctx, p, &renewed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Already replayed once: the fresh credentials were rejected too.
		return nil, c.endSession(ctx, responseError(resp))
	}
	return result(resp)
}

// DoJSON executes req and decodes a successful body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) current(ctx context.Context) (*session.Session, error) {
	sess, ok, err := c.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func result(resp *Response) (*Response, error) {
	if isSuccess(resp.StatusCode) {
		return resp, nil
	}
	return nil, responseError(resp)
}

// endSession clears the credentials, raises the session-ended signal and
// returns the error every affected caller receives.
func (c *Client) endSession(ctx context.Context, cause error) error {
	ended := pkgerrors.Wrap(pkgerrors.CodeSessionEnded, cause, pkgerrors.ErrSessionEnded.Message())
	if err := c.store.Clear(ctx); err != nil {
		c.logg.Error(ctx, "failed to clear session", err)
	}
	c.metrics.IncSessionEnded()
	c.logg.Warn(c.logg.WithFields(ctx, pkgerrors.Dump(cause).Fields()), "session ended")
	if c.onSessionEnded != nil {
		c.onSessionEnded(ctx, ended)
	}
	return ended
}
