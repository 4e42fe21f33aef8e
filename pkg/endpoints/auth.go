package endpoints

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mpapenbr/botrace/log"
)

const tokenHeader = "api-token"

var (
	ErrUnauthorized = errors.New("unauthorized")
	errInvalidMode  = errors.New("mode must be frame or state")
	errInvalidEvery = errors.New("every must be a positive number")
)

// requireAdmin rejects requests without the admin token. The token is accepted
// as bearer token or in the api-token header.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(tokenHeader)
		if token == "" {
			token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.l.Debug("rejected request",
				log.String("method", r.Method),
				log.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
