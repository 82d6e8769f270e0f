package api

import (
	"crypto/subtle"
	"net/http"
)

// AdminKeyHeader carries the admin key on privileged requests.
const AdminKeyHeader = "x-ffl-admin-key"

// AdminKey rejects requests whose admin key header does not match key.
// An empty key leaves the route open.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(AdminKeyHeader)), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
