package httpapi

import (
	"crypto/subtle"
	"net/http"

	"pbx-admin/internal/config"
)

// XMLCurlBasicAuth guards the mod_xml_curl endpoints. When no credentials are
// configured the endpoints are open.
func XMLCurlBasicAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.XMLCurlUser == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="fsxml"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !equal(user, cfg.XMLCurlUser) || !equal(pass, cfg.XMLCurlPass) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func APIKeyAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeError(w, http.StatusUnauthorized, "api key required")
				return
			}
			ok := false
			for _, k := range cfg.APIKeys {
				if equal(k.Key, key) {
					ok = true
					break
				}
			}
			if !ok {
				writeError(w, http.StatusForbidden, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
