package mockapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"

	pkgauth "github.com/angelmondragon/packfinderz-storefront/pkg/auth"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

type contextKey string

const (
	ctxCustomerID contextKey = "customer_id"
	ctxTokenID    contextKey = "token_id"
)

func customerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxCustomerID).(string); ok {
		return v
	}
	return ""
}

func tokenIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxTokenID).(string); ok {
		return v
	}
	return ""
}

func requestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(logg.WithRequestID(r.Context(), reqID)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			ctx = logg.WithFields(ctx, map[string]any{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			logg.Info(ctx, "request.complete")
		})
	}
}

func recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					ctx := logg.WithFields(r.Context(), map[string]any{"panic": rec})
					writeError(ctx, logg, w, r, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func corsPolicy(principalHeader string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", requestIDHeader, principalHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}).Handler
}

// authenticate validates the bearer token and the principal header, then
// seeds the request context with the customer id.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		if s.consumeForcedUnauthorized() {
			writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "token expired"))
			return
		}

		claims, err := pkgauth.ParseAccessToken(s.tokens, token)
		if err != nil {
			writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
			return
		}
		if !s.tokenActive(claims.ID) {
			writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "token expired"))
			return
		}
		if principal := strings.TrimSpace(r.Header.Get(s.principalHeader)); principal != "" && principal != claims.CustomerID {
			writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeForbidden, "principal does not match token"))
			return
		}

		ctx := context.WithValue(r.Context(), ctxCustomerID, claims.CustomerID)
		ctx = context.WithValue(ctx, ctxTokenID, claims.ID)
		ctx = s.logg.WithPrincipalID(ctx, claims.CustomerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
