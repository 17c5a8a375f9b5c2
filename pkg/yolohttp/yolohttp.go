package yolohttp

// Package yolohttp is an nn.ObjectDetector that sends images to an external YOLO inference server.
//
// Protocol:
//   GET  <url>/health   -> 200 when the server is ready
//   POST <url>/predict  multipart form: image (JPEG), model (weights file, eg "yolov8s.pt"),
//                       conf (probability threshold), iou (NMS IoU threshold)
//                       -> {"detections": [{"class_id": 2, "confidence": 0.91, "box": [x1, y1, x2, y2]}, ...]}
// Boxes are in pixel coordinates of the submitted image.

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/cyclopcam/vidinspect/pkg/www"
)

type Config struct {
	URL         string          // Base URL of the inference server, eg "http://localhost:5000"
	Variant     nn.ModelVariant // Selects the weights that the server runs
	Model       *nn.ModelConfig // Class table. If nil, the COCO table is used
	Timeout     time.Duration   // Per-request timeout. Zero means 30 seconds
	JPEGQuality int             // Quality of the JPEG sent to the server. Zero means 95
}

type Detector struct {
	baseURL     string
	variant     nn.ModelVariant
	config      nn.ModelConfig
	client      *http.Client
	jpegQuality int
}

type detectionJSON struct {
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type predictResponseJSON struct {
	Detections []detectionJSON `json:"detections"`
}

func NewDetector(cfg Config) (*Detector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Inference server URL is empty")
	}
	model := cfg.Model
	if model == nil {
		model = nn.COCOModelConfig()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	quality := cfg.JPEGQuality
	if quality == 0 {
		quality = 95
	}
	variant := cfg.Variant
	if variant == "" {
		variant = nn.DefaultModelVariant
	}
	return &Detector{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		variant:     variant,
		config:      *model,
		client:      &http.Client{Timeout: timeout},
		jpegQuality: quality,
	}, nil
}

// CheckHealth returns nil if the inference server reports that it is ready
func (d *Detector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", d.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := www.Do(d.client, req)
	if err != nil {
		return fmt.Errorf("Inference server at %v is not healthy: %w", d.baseURL, err)
	}
	resp.Body.Close()
	return nil
}

func (d *Detector) Variant() nn.ModelVariant {
	return d.variant
}

func (d *Detector) Close() {
	d.client.CloseIdleConnections()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(ctx context.Context, img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	p := params.WithDefaults()

	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling444, d.jpegQuality, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to compress image for inference: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(jpg); err != nil {
		return nil, err
	}
	writer.WriteField("model", d.variant.Weights())
	writer.WriteField("conf", strconv.FormatFloat(float64(p.ProbabilityThreshold), 'f', -1, 32))
	writer.WriteField("iou", strconv.FormatFloat(float64(p.NmsIouThreshold), 'f', -1, 32))
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/predict", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	result := predictResponseJSON{}
	if err := www.FetchJSON(d.client, req, &result); err != nil {
		return nil, fmt.Errorf("Inference request failed: %w", err)
	}
	return d.convert(result.Detections, img.Width, img.Height)
}

// Convert the server's detections into our own, preserving their order
func (d *Detector) convert(raw []detectionJSON, width, height int) ([]nn.ObjectDetection, error) {
	objects := make([]nn.ObjectDetection, 0, len(raw))
	for i, r := range raw {
		if len(r.Box) != 4 {
			return nil, fmt.Errorf("Detection %v has %v box coordinates instead of 4", i, len(r.Box))
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("Detection %v has confidence %v outside of [0,1]", i, r.Confidence)
		}
		label, err := d.config.Label(r.ClassID)
		if err != nil {
			return nil, err
		}
		objects = append(objects, nn.ObjectDetection{
			Class:      r.ClassID,
			Label:      label,
			Confidence: r.Confidence,
			Box:        nn.RectFromFloatCorners(r.Box[0], r.Box[1], r.Box[2], r.Box[3]).Clamp(width, height),
		})
	}
	return objects, nil
}
