package http

import (
	"net/http"
	"strings"

	"github.com/good12834/shoestore/pkg/httputil"
	"github.com/good12834/shoestore/pkg/middleware"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sessionIdentity tags request logs with the session's user and the profile
// this process serves.
func sessionIdentity(session SessionManager, profile string) middleware.Identity {
	return func(*http.Request) (string, string) {
		if session == nil {
			return "", profile
		}
		return session.UserID(), profile
	}
}
