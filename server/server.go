package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/inspect"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/cyclopcam/vidinspect/pkg/nnload"
	"github.com/cyclopcam/vidinspect/pkg/tempfiles"
	"github.com/cyclopcam/vidinspect/pkg/videox"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log     logs.Log
	Config  *Config
	Metrics *Metrics

	// ShutdownComplete receives one value when Shutdown has finished
	ShutdownComplete chan error

	signalIn     chan os.Signal
	shutdownOnce sync.Once
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	temp         *tempfiles.TempFiles
	model        *nnload.Shared
	pipeline     *inspect.Pipeline
}

// NewServer creates a server that decodes with ffmpeg, and detects with the configured inference server.
// The model is loaded by the first request that needs it.
func NewServer(logger logs.Log, cfg *Config) (*Server, error) {
	setup := nnload.ModelSetup{
		URL:             cfg.Detector.URL,
		Variant:         cfg.Variant(),
		ModelConfigFile: cfg.Detector.ModelConfig,
		ClassFile:       cfg.Detector.ClassFile,
		Serialize:       cfg.Detector.Serialize,
		DedupeIoU:       cfg.Detector.DedupeIoU,
		Timeout:         time.Duration(cfg.Detector.TimeoutSeconds) * time.Second,
	}
	load := func(ctx context.Context) (nn.ObjectDetector, error) {
		return nnload.LoadModel(ctx, logger, setup)
	}
	decoder := &videox.FFmpegDecoder{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
	}
	return newServer(logger, cfg, decoder, nnload.NewShared(load))
}

func newServer(logger logs.Log, cfg *Config, decoder videox.VideoDecoder, model *nnload.Shared) (*Server, error) {
	temp, err := tempfiles.NewTempFiles(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("Failed to create temp directory %v: %w", cfg.TempDir, err)
	}
	s := &Server{
		Log:     logger,
		Config:  cfg,
		Metrics: NewMetrics(),
		temp:    temp,
		model:   model,

		ShutdownComplete: make(chan error, 1),
	}
	s.pipeline = &inspect.Pipeline{
		Log:     logger,
		Decoder: decoder,
		Temp:    temp,
		Models:  model,
		Variant: cfg.Variant(),
		Encoder: inspect.JPEGEncoder{Quality: cfg.AnnotatedFrame.JPEGQuality},
		Options: cfg.PipelineOptions(),
	}
	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Preload loads the model now, instead of waiting for the first request
func (s *Server) Preload(ctx context.Context) error {
	if _, err := s.model.Acquire(ctx); err != nil {
		return err
	}
	s.model.Release()
	return nil
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// Shutdown() was called by something other than ourselves, and closed signalIn
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops the HTTP server, waits for in-flight requests, and releases the model.
// It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.Log.Infof("Shutdown")
		if s.signalIn != nil {
			signal.Stop(s.signalIn)
			close(s.signalIn)
		}
		var err error
		if s.httpServer != nil {
			s.Log.Infof("Closing HTTP server")
			ctx, cancel := context.WithTimeout(context.Background(), s.Config.RequestTimeout()+2*time.Second)
			err = s.httpServer.Shutdown(ctx)
			cancel()
		}
		s.model.Close()
		if err != nil {
			s.Log.Warnf("Shutdown complete, with error: %v", err)
		} else {
			s.Log.Infof("Shutdown complete")
		}
		s.ShutdownComplete <- err
	})
}
