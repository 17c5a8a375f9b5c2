package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

// RunProtected runs 'func' inside a panic handler that recognizes our special errors,
// and sends the appropriate HTTP response if a panic does occur.
func RunProtected(log logs.Log, w http.ResponseWriter, r *http.Request, handler func()) {
	defer func() {
		if rec := recover(); rec != nil {
			if hErr, ok := rec.(HTTPError); ok {
				log.Infof("Failed request %v: %v %v", r.URL.Path, hErr.Code, hErr.Message)
				SendError(w, hErr.Message, hErr.Code)
			} else if hErr, ok := rec.(*HTTPError); ok {
				log.Infof("Failed request %v: %v %v", r.URL.Path, hErr.Code, hErr.Message)
				SendError(w, hErr.Message, hErr.Code)
			} else if err, ok := rec.(runtime.Error); ok {
				// Show stack trace on runtime error
				log.Errorf("Runtime panic error %v: %v", r.URL.Path, err)
				log.Errorf("Stack Trace: %v", string(debug.Stack()))
				SendError(w, err.Error(), http.StatusInternalServerError)
			} else if err, ok := rec.(error); ok {
				// No stack trace on generic error
				log.Errorf("Panic error %v: %v", r.URL.Path, err)
				SendError(w, err.Error(), http.StatusInternalServerError)
			} else if err, ok := rec.(string); ok {
				log.Errorf("Panic string %v: %v", r.URL.Path, err)
				SendError(w, err, http.StatusInternalServerError)
			} else {
				log.Errorf("Unrecognized panic %v: %v", r.URL.Path, rec)
				SendError(w, "Unrecognized panic", http.StatusInternalServerError)
			}
		}
	}()

	handler()
}

// Handle adds a protected HTTP route to router (ie handle will run inside RunProtected, so you get a panic handler).
func Handle(log logs.Log, router *httprouter.Router, method, path string, handle httprouter.Handle) {
	wrapper := func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		RunProtected(log, w, r, func() { handle(w, r, p) })
	}
	router.Handle(method, path, wrapper)
}

// Returns the named query value (or an empty string)
func QueryValue(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// Returns (value, true) if the query value is a recognizable boolean ("1", "true", "0", "false", etc).
// Returns (false, false) if the value is missing or unrecognized.
func QueryBool(r *http.Request, key string) (bool, bool) {
	v := QueryValue(r, key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Set cache headers instructing the client never to cache
func CacheNever(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "max-age=0")
}

// IsNotModifiedEx sets the Last-Modified and Cache-Control headers and returns false if the client's copy is stale.
// Otherwise it sends 304 Not Modified, and returns true.
func IsNotModifiedEx(w http.ResponseWriter, r *http.Request, modifiedAt time.Time, cacheControl string) bool {
	// HTTP times have one second precision, and time.Time is truncated when formatted, so we truncate too.
	modifiedAt = modifiedAt.UTC().Truncate(time.Second)
	ifModifiedSinceStr := r.Header.Get("If-Modified-Since")
	ifModifiedSince := time.Time{}
	var err error
	if ifModifiedSinceStr != "" {
		ifModifiedSince, err = time.Parse(time.RFC1123, ifModifiedSinceStr)
	}
	if err != nil || modifiedAt.After(ifModifiedSince) {
		w.Header().Set("Last-Modified", modifiedAt.Format(http.TimeFormat))
		w.Header().Set("Cache-Control", cacheControl)
		return false
	}
	w.WriteHeader(http.StatusNotModified)
	return true
}

// ErrorJSON is the body of every error response
type ErrorJSON struct {
	Error string `json:"error"`
}

// SendError sends {"error": message} with the given status code
func SendError(w http.ResponseWriter, message string, code int) {
	SendJSONStatus(w, ErrorJSON{Error: message}, code)
}

// SendJSON encodes 'obj' to JSON, and sends it as an HTTP application/json response.
func SendJSON(w http.ResponseWriter, obj interface{}) {
	SendJSONStatus(w, obj, http.StatusOK)
}

// SendJSONStatus encodes 'obj' to JSON, and sends it with the given status code
func SendJSONStatus(w http.ResponseWriter, obj interface{}, code int) {
	b, err := json.Marshal(obj)
	if err != nil {
		// Headers have not been written yet, so we can still produce a clean error
		b = []byte(fmt.Sprintf(`{"error":%q}`, "Failed to encode response: "+err.Error()))
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	w.Write(b)
}
