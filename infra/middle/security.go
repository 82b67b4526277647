package middle

import (
	"net/http"
	"strings"

	"github.com/mstgnz/oxipay/infra/config"
	"github.com/mstgnz/oxipay/infra/response"
)

// gatewayPathPrefix holds the routes the gateway and the shopper's browser post forms to
const gatewayPathPrefix = "/oxipay/"

// SecurityHeadersMiddleware adds security headers to responses.
// Inline script is allowed for the self-posting checkout form.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// IPWhitelistMiddleware restricts access to whitelisted IPs (optional)
func IPWhitelistMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			whitelist := config.GetEnv("IP_WHITELIST", "")
			if whitelist == "" {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := GetClientIP(r)
			allowed := false
			for _, ip := range strings.Split(whitelist, ",") {
				if strings.TrimSpace(ip) == clientIP {
					allowed = true
					break
				}
			}

			if !allowed {
				response.Error(w, http.StatusForbidden, "IP not whitelisted", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestValidationMiddleware validates content type and size.
// Gateway routes accept form posts, everything else speaks JSON.
func RequestValidationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")
				isGatewayEndpoint := strings.HasPrefix(r.URL.Path, gatewayPathPrefix)

				switch {
				case contentType == "" && !isGatewayEndpoint:
					response.Error(w, http.StatusBadRequest, "Content-Type header is required", nil)
					return
				case contentType == "":
				case isGatewayEndpoint:
					if !strings.Contains(contentType, "application/x-www-form-urlencoded") &&
						!strings.Contains(contentType, "multipart/form-data") &&
						!strings.Contains(contentType, "application/json") {
						response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be a form or application/json", nil)
						return
					}
				case !strings.Contains(contentType, "application/json"):
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
					return
				}
			}

			// 1MB is far above any gateway form
			if r.ContentLength > 1<<20 {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
