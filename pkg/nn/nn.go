package nn

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// Package nn is a Neural Network interface layer
// To load a shared model, use the nnload package.

const DefaultProbabilityThreshold = 0.5
const DefaultNmsIouThreshold = 0.45

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Passed to the detector as a hint. Zero keeps everything the detector emits.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
	}
}

// Returns a copy of p with a zero NmsIouThreshold replaced by its default.
// A nil p gives NewDetectionParams().
func (p *DetectionParams) WithDefaults() DetectionParams {
	if p == nil {
		return *NewDetectionParams()
	}
	c := *p
	if c.NmsIouThreshold == 0 {
		c.NmsIouThreshold = DefaultNmsIouThreshold
	}
	return c
}

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close releases the detector. Callers must not use it afterwards.
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// img is expected to be a 24-bit RGB image.
	// The order of the returned objects is the order in which the model emitted them.
	DetectObjects(ctx context.Context, img *cimg.Image, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Width        int      `json:"width"`        // eg 640
	Height       int      `json:"height"`       // eg 640
	Classes      []string `json:"classes"`      // eg ["person", "bicycle", "car", ...]
}

// Return the lower-cased label of the class, or an error if the class is not in the table
func (c *ModelConfig) Label(class int) (string, error) {
	if class < 0 || class >= len(c.Classes) {
		return "", fmt.Errorf("Class %v is outside of the model's class table (%v classes)", class, len(c.Classes))
	}
	return strings.ToLower(c.Classes[class]), nil
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, fmt.Errorf("Error parsing model config %v: %w", filename, err)
	}
	if len(config.Classes) == 0 {
		return nil, fmt.Errorf("Model config %v has no classes", filename)
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
