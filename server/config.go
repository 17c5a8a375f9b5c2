package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/vidinspect/pkg/inspect"
	"github.com/cyclopcam/vidinspect/pkg/nn"
)

type Config struct {
	Listen                string               `json:"listen"`                // eg ":8080"
	TempDir               string               `json:"tempDir"`               // Uploaded videos are stored here while being inspected. Wiped at startup.
	FFmpegPath            string               `json:"ffmpegPath"`            // Defaults to "ffmpeg" in PATH
	FFprobePath           string               `json:"ffprobePath"`           // Defaults to "ffprobe" in PATH
	Detector              DetectorConfig       `json:"detector"`              // The object detector
	ConfidenceFloor       *float32             `json:"confidenceFloor"`       // Detections below this confidence are discarded. 0 keeps everything. Defaults to 0.5
	AnnotatedFrame        AnnotatedFrameConfig `json:"annotatedFrame"`        // The optional image in the response
	MaxUploadMB           int                  `json:"maxUploadMB"`           // Larger uploads are rejected
	RateLimit             RateLimitConfig      `json:"rateLimit"`             // Per client IP limit on the detect route
	RequestTimeoutSeconds int                  `json:"requestTimeoutSeconds"` // Deadline of a single inspection
}

type DetectorConfig struct {
	URL            string  `json:"url"`            // Inference server, eg "http://localhost:8000"
	Variant        string  `json:"variant"`        // "compact" or "standard"
	ModelConfig    string  `json:"modelConfig"`    // Optional JSON file with the class table
	ClassFile      string  `json:"classFile"`      // Optional text file with one class per line
	Serialize      bool    `json:"serialize"`      // Run only one inference at a time
	DedupeIoU      float32 `json:"dedupeIoU"`      // If > 0, merge same-class boxes that overlap by at least this much
	NmsIoU         float32 `json:"nmsIoU"`         // NMS hint for the inference server
	TimeoutSeconds int     `json:"timeoutSeconds"` // Per inference HTTP timeout
}

type AnnotatedFrameConfig struct {
	Include         bool   `json:"include"`         // Include the annotated frame when the request doesn't specify
	JPEGQuality     int    `json:"jpegQuality"`     // 1..100
	OnEncodeFailure string `json:"onEncodeFailure"` // "fail" or "degrade"
}

// RateLimit is disabled when Requests is zero
type RateLimitConfig struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"windowSeconds"`
}

const (
	DefaultListen                = ":8080"
	DefaultMaxUploadMB           = 256
	DefaultRequestTimeoutSeconds = 60
	DefaultDetectorURL           = "http://localhost:8000"
	DefaultDetectorTimeout       = 30
	DefaultRateLimitWindow       = 60
)

// LoadConfig reads a JSON config file. If the file does not exist, the defaults are used.
func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}
	raw, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		// defaults
	} else if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	} else if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

// Validate fills in defaults, and returns an error if any value is out of range
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.TempDir == "" {
		c.TempDir = filepath.Join(os.TempDir(), "vidinspect")
	}
	if c.Detector.URL == "" {
		c.Detector.URL = DefaultDetectorURL
	}
	variant, err := nn.ParseModelVariant(c.Detector.Variant)
	if err != nil {
		return err
	}
	c.Detector.Variant = string(variant)
	if c.Detector.DedupeIoU < 0 || c.Detector.DedupeIoU > 1 {
		return fmt.Errorf("detector.dedupeIoU must be between 0 and 1 (%v)", c.Detector.DedupeIoU)
	}
	if c.Detector.NmsIoU < 0 || c.Detector.NmsIoU > 1 {
		return fmt.Errorf("detector.nmsIoU must be between 0 and 1 (%v)", c.Detector.NmsIoU)
	}
	if c.Detector.TimeoutSeconds == 0 {
		c.Detector.TimeoutSeconds = DefaultDetectorTimeout
	} else if c.Detector.TimeoutSeconds < 0 {
		return fmt.Errorf("detector.timeoutSeconds may not be negative (%v)", c.Detector.TimeoutSeconds)
	}
	if c.ConfidenceFloor == nil {
		floor := float32(nn.DefaultProbabilityThreshold)
		c.ConfidenceFloor = &floor
	} else if *c.ConfidenceFloor < 0 || *c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidenceFloor must be between 0 and 1 (%v)", *c.ConfidenceFloor)
	}
	if c.AnnotatedFrame.JPEGQuality == 0 {
		c.AnnotatedFrame.JPEGQuality = inspect.DefaultJPEGQuality
	} else if c.AnnotatedFrame.JPEGQuality < 1 || c.AnnotatedFrame.JPEGQuality > 100 {
		return fmt.Errorf("annotatedFrame.jpegQuality must be between 1 and 100 (%v)", c.AnnotatedFrame.JPEGQuality)
	}
	policy, err := inspect.ParseEncodeFailurePolicy(c.AnnotatedFrame.OnEncodeFailure)
	if err != nil {
		return err
	}
	c.AnnotatedFrame.OnEncodeFailure = string(policy)
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = DefaultMaxUploadMB
	} else if c.MaxUploadMB < 0 {
		return fmt.Errorf("maxUploadMB may not be negative (%v)", c.MaxUploadMB)
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rateLimit.requests may not be negative (%v)", c.RateLimit.Requests)
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = DefaultRateLimitWindow
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	} else if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("requestTimeoutSeconds may not be negative (%v)", c.RequestTimeoutSeconds)
	}
	return nil
}

func (c *Config) Variant() nn.ModelVariant {
	return nn.ModelVariant(c.Detector.Variant)
}

// Floor is the confidence floor. Only valid after Validate.
func (c *Config) Floor() float32 {
	return *c.ConfidenceFloor
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) PipelineOptions() inspect.Options {
	return inspect.Options{
		ConfidenceFloor:       c.Floor(),
		NmsIouThreshold:       c.Detector.NmsIoU,
		IncludeAnnotatedFrame: c.AnnotatedFrame.Include,
		OnEncodeFailure:       inspect.EncodeFailurePolicy(c.AnnotatedFrame.OnEncodeFailure),
		MaxVideoBytes:         c.MaxUploadBytes(),
	}
}
