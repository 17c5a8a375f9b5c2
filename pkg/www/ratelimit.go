package www

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

// RateLimited wraps handle so that each client IP may call it at most requestLimit times per windowLength.
// Each call to RateLimited creates its own limiter, so the limit applies per endpoint.
// If requestLimit is zero, handle is returned unmodified.
func RateLimited(handle httprouter.Handle, requestLimit int, windowLength time.Duration) httprouter.Handle {
	if requestLimit <= 0 {
		return handle
	}
	limiter := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(w, r, params)
		})).ServeHTTP(w, r)
	}
}
