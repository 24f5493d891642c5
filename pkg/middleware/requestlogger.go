package middleware

import (
	"log/slog"
	"net/http"

	"github.com/good12834/shoestore/pkg/logger"
)

// Identity reports who the request acts for. The local API serves a single
// session, so this is usually the session's user and profile.
type Identity func(r *http.Request) (userID, profile string)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, user_id, profile, trace_id and span_id. Mount it after
// RequestLogging and Tracing. identify may be nil.
func RequestLogger(base *slog.Logger, identify Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if identify != nil {
				userID, profile := identify(r)
				if userID != "" {
					ctx = logger.WithUserID(ctx, userID)
				}
				if profile != "" {
					ctx = logger.WithProfile(ctx, profile)
				}
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
