package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/vidinspect/pkg/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

// httpModel describes the detector. This loads the model if it is not yet loaded.
func (s *Server) httpModel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type modelJSON struct {
		Variant         string   `json:"variant"`
		Weights         string   `json:"weights"`
		Model           string   `json:"model"`
		Architecture    string   `json:"architecture"`
		ConfidenceFloor float32  `json:"confidenceFloor"`
		Classes         []string `json:"classes"`
	}
	model, err := s.model.Acquire(r.Context())
	if err != nil {
		www.PanicServerErrorf("Failed to load model: %v", err)
	}
	defer s.model.Release()
	cfg := model.Config()
	variant := s.Config.Variant()
	www.CacheNever(w)
	www.SendJSON(w, &modelJSON{
		Variant:         string(variant),
		Weights:         variant.Weights(),
		Model:           variant.ModelName(),
		Architecture:    cfg.Architecture,
		ConfidenceFloor: s.Config.Floor(),
		Classes:         cfg.Classes,
	})
}
