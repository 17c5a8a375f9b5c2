package server

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/cyclopcam/vidinspect/pkg/staticfiles"
	"github.com/cyclopcam/vidinspect/pkg/www"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed static
var staticWWW embed.FS

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	detect := www.RateLimited(s.httpDetectVideo, s.Config.RateLimit.Requests, time.Duration(s.Config.RateLimit.WindowSeconds)*time.Second)

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/model", s.httpModel)
	handle("POST", "/api/detect-video", detect)
	handle("POST", "/detect-video/", detect)

	metrics := promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{})
	router.Handler("GET", "/metrics", metrics)

	// The upload page
	static, err := fs.Sub(staticWWW, "static")
	if err != nil {
		return err
	}
	router.NotFound = staticfiles.NewStaticFileServer(static, []string{"/api/"}, s.Log)

	s.httpRouter = router
	return nil
}

// ServeHTTP lets the server be used directly as an http.Handler, eg with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpRouter.ServeHTTP(w, r)
}
