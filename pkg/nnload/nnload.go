package nnload

// Package nnload wraps up our 'nn' interface layer, and has concrete references to our
// detector implementation (eg yolohttp), so that you can just call one function to
// load a model, and not need to know about the implementation details.

import (
	"context"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/cyclopcam/vidinspect/pkg/yolohttp"
)

// ModelSetup describes the detector that LoadModel creates
type ModelSetup struct {
	URL             string          // Inference server
	Variant         nn.ModelVariant // compact or standard
	ModelConfigFile string          // Optional JSON model config (class table). Takes precedence over ClassFile
	ClassFile       string          // Optional text file with one class name per line
	Serialize       bool            // Allow only one inference at a time
	DedupeIoU       float32         // If > 0, merge same-class boxes that overlap by at least this much
	Timeout         time.Duration   // Per-inference timeout
}

// LoadModel creates the detector described by setup, and verifies that it is reachable.
func LoadModel(ctx context.Context, log logs.Log, setup ModelSetup) (nn.ObjectDetector, error) {
	config, err := loadClassTable(setup)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading %v model (%v) from %v", setup.Variant, setup.Variant.Weights(), setup.URL)
	det, err := yolohttp.NewDetector(yolohttp.Config{
		URL:     setup.URL,
		Variant: setup.Variant,
		Model:   config,
		Timeout: setup.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := det.CheckHealth(ctx); err != nil {
		det.Close()
		return nil, err
	}

	var model nn.ObjectDetector = det
	if setup.DedupeIoU > 0 {
		model = &nn.Deduplicated{ObjectDetector: model, MinIoU: setup.DedupeIoU}
	}
	if setup.Serialize {
		model = nn.NewSerialized(model)
	}
	log.Infof("Model loaded (%v classes)", len(config.Classes))
	return model, nil
}

func loadClassTable(setup ModelSetup) (*nn.ModelConfig, error) {
	if setup.ModelConfigFile != "" {
		return nn.LoadModelConfig(setup.ModelConfigFile)
	}
	if setup.ClassFile != "" {
		classes, err := nn.LoadClassFile(setup.ClassFile)
		if err != nil {
			return nil, err
		}
		if len(classes) == 0 {
			return nil, fmt.Errorf("Class file %v is empty", setup.ClassFile)
		}
		config := nn.COCOModelConfig()
		config.Classes = classes
		return config, nil
	}
	return nn.COCOModelConfig(), nil
}
