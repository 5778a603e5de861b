package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jnsquire/zetro"
)

// CORSConfig holds the configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the origins a cross-origin request may come
	// from. A "*" entry allows any origin.
	// Default: ["*"]
	AllowedOrigins []string

	// AllowedMethods lists the methods a preflight may ask for.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string

	// AllowedHeaders lists the request headers a preflight may ask for.
	// The default includes the zetro protocol headers so browser clients
	// can send schema pins and request ids.
	AllowedHeaders []string

	// ExposedHeaders lists the response headers scripts may read. They are
	// stamped on every allowed response, not just preflights. The default
	// configuration exposes the zetro protocol headers.
	ExposedHeaders []string

	// AllowCredentials permits cookies and Authorization headers on
	// cross-origin requests.
	// Default: false
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	// Default: 0 (not sent)
	MaxAge int
}

// DefaultCORSConfig returns a permissive configuration suitable for
// development: any origin may call the endpoint and read the schema and
// request id headers.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", zetro.SchemaHeader, zetro.RequestIDHeader},
		ExposedHeaders: []string{zetro.SchemaHeader, zetro.RequestIDHeader},
	}
}

// CORS returns an HTTP middleware that answers preflight requests and stamps
// CORS headers on responses. It wraps the whole http.Handler rather than
// individual operations, so preflights never reach the dispatcher. A nil
// config uses DefaultCORSConfig.
func CORS(cfg *CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = DefaultCORSConfig()
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = DefaultCORSConfig().AllowedMethods
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = DefaultCORSConfig().AllowedHeaders
	}

	wildcard := contains(allowedOrigins, "*")
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")
	exposeHeader := strings.Join(cfg.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := wildcard || (origin != "" && contains(allowedOrigins, origin))
			if allowed {
				// The CORS spec forbids Access-Control-Allow-Origin: *
				// together with Access-Control-Allow-Credentials: true, so
				// a wildcard with credentials echoes the requesting origin
				// instead.
				if origin != "" && (!wildcard || cfg.AllowCredentials) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				} else {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeader != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposeHeader)
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methodsHeader)
				w.Header().Set("Access-Control-Allow-Headers", headersHeader)
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
