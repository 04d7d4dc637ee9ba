package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/google/uuid"
)

// Request is a replayable description of one backend call. Body is encoded
// once; every replay sends identical bytes.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    any

	// Anonymous requests carry no credentials and bypass 401 recovery.
	Anonymous bool
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into out. Empty bodies leave out untouched.
func (r *Response) Decode(out any) error {
	if r == nil || out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

type prepared struct {
	Request
	body      []byte
	requestID string
}

func prepare(req Request) (*prepared, error) {
	if strings.TrimSpace(req.Method) == "" {
		req.Method = http.MethodGet
	}
	if strings.TrimSpace(req.Path) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request path is required")
	}
	p := &prepared{Request: req}
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode request body")
		}
		p.body = encoded
	}
	p.requestID = req.Headers.Get(HeaderRequestID)
	if p.requestID == "" {
		p.requestID = uuid.NewString()
	}
	return p, nil
}

// send performs one HTTP exchange. creds is nil for unauthenticated calls.
func (c *Client) send(ctx context.Context, p *prepared, creds *session.Session) (*Response, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, p.Method, c.buildURL(p.Path, p.Query), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build request")
	}

	for key, values := range p.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, p.requestID)
	if p.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if creds != nil && creds.Valid() {
		httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		if creds.PrincipalID != "" {
			httpReq.Header.Set(c.principalHeader, creds.PrincipalID)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(p.Method, 0, time.Since(start))
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	c.metrics.ObserveRequest(p.Method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, networkError(err)
	}

	c.logg.Debug(ctx, p.Method+" "+p.Path+" -> "+http.StatusText(resp.StatusCode))
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: payload}, nil
}

func networkError(err error) error {
	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	} else if errors.Is(err, context.Canceled) {
		msg = "request canceled"
	}
	return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, msg)
}

// responseError maps a non-2xx response onto a typed error, keeping the
// backend's error body as details when it decodes.
func responseError(resp *Response) error {
	var body types.ErrorResponse
	message := ""
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		message = body.Message
		if message == "" {
			message = body.Error
		}
	}
	typed := pkgerrors.FromStatus(resp.StatusCode, message)
	if body.ErrorCode != "" || len(body.FieldErrors) > 0 {
		typed = typed.WithDetails(body)
	}
	return typed
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
