package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
)

// CheckTokenHeader carries the shared secret of the check trigger
const CheckTokenHeader = "X-Ackbot-Verify"

// CheckTokenMiddleware rejects requests whose CheckTokenHeader does not match token.
// An empty token rejects every request.
func CheckTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(CheckTokenHeader)
			if token == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				errutil.HandleHTTP(r.Context(), w, goerr.New("invalid check token"), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
