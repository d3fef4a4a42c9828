package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes which browser origins may call the API. Empty header
// lists fall back to what the storefront and dashboard send.
type CORSPolicy struct {
	AllowedOrigins []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

var (
	defaultAllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	defaultExposedHeaders = []string{"Retry-After", "X-Request-ID"}
	corsMethods           = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
)

// Enabled reports whether any origin is configured.
func (p CORSPolicy) Enabled() bool {
	for _, origin := range p.AllowedOrigins {
		if strings.TrimSpace(origin) != "" {
			return true
		}
	}
	return false
}

// CORS applies the policy. A "*" origin echoes back any Origin. Preflights
// from unknown origins or for unsupported methods are refused here instead
// of reaching the routes.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	allowAny := false
	origins := map[string]struct{}{}
	for _, origin := range policy.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			origins[origin] = struct{}{}
		}
	}

	allowedHeaders := strings.Join(orDefault(policy.AllowedHeaders, defaultAllowedHeaders), ", ")
	exposedHeaders := strings.Join(orDefault(policy.ExposedHeaders, defaultExposedHeaders), ", ")
	allowedMethods := strings.Join(corsMethods, ", ")
	maxAge := "600"
	if policy.MaxAge > 0 {
		maxAge = strconv.Itoa(int(policy.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			_, listed := origins[origin]
			permitted := allowAny || listed
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if permitted {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)
			}
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			if !permitted {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if !methodAllowed(r.Header.Get("Access-Control-Request-Method")) {
				w.Header().Set("Allow", allowedMethods)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func methodAllowed(method string) bool {
	for _, m := range corsMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}
