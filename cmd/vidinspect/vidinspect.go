package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/kibi"
	"github.com/cyclopcam/vidinspect/server"
)

func main() {
	parser := argparse.NewParser("vidinspect", "Detect objects in the first frame of uploaded videos")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "vidinspect.json"})
	variant := parser.Selector("", "variant", []string{"compact", "standard"}, &argparse.Options{Help: "Detector weights (overrides config file)"})
	listen := parser.String("", "listen", &argparse.Options{Help: "HTTP listen address, eg :8080 (overrides config file)"})
	preload := parser.Flag("", "preload", &argparse.Options{Help: "Load the model at startup instead of on the first request", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := server.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *variant != "" {
		cfg.Detector.Variant = *variant
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	logger.Infof("Detector %v (%v), confidence floor %v, max upload %v", cfg.Detector.URL, cfg.Detector.Variant, cfg.Floor(), kibi.FormatBytes(cfg.MaxUploadBytes()))
	srv, err := server.NewServer(logger, cfg)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *preload {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := srv.Preload(ctx)
		cancel()
		if err != nil {
			logger.Errorf("Failed to load model: %v", err)
			os.Exit(1)
		}
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	err = srv.ListenHTTP(cfg.Listen)
	if err != http.ErrServerClosed {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Shutdown()
	}
	<-srv.ShutdownComplete
}
