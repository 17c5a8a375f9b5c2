package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/cyclopcam/vidinspect/pkg/nnload"
	"github.com/cyclopcam/vidinspect/pkg/videox"
	"github.com/cyclopcam/vidinspect/pkg/www"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeDecoder treats any file that starts with "VIDEO" as a valid video
type fakeDecoder struct{}

type fakeSession struct{}

func (fakeDecoder) Open(ctx context.Context, filename string) (videox.DecodeSession, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(b, []byte("VIDEO")) {
		return nil, fmt.Errorf("%w: not a video", videox.ErrOpen)
	}
	return fakeSession{}, nil
}

func (fakeSession) ReadFrame(ctx context.Context) (*cimg.Image, error) {
	return cimg.NewImage(320, 240, cimg.PixelFormatRGB), nil
}

func (fakeSession) Close() error {
	return nil
}

// inferenceServer imitates the YOLO HTTP server, and always finds a car, a weak car, and a person
func inferenceServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"detections": [
				{"class_id": 2, "confidence": 0.9, "box": [10, 20, 110, 80]},
				{"class_id": 2, "confidence": 0.4, "box": [150, 20, 200, 80]},
				{"class_id": 0, "confidence": 0.6, "box": [220, 40, 260, 200]}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, configure func(cfg *Config)) *Server {
	logger := logs.NewTestingLog(t)
	cfg := &Config{
		TempDir: filepath.Join(t.TempDir(), "tmp"),
	}
	cfg.Detector.URL = inferenceServer(t).URL
	if configure != nil {
		configure(cfg)
	}
	require.NoError(t, cfg.Validate())
	setup := nnload.ModelSetup{URL: cfg.Detector.URL, Variant: cfg.Variant()}
	model := nnload.NewShared(func(ctx context.Context) (nn.ObjectDetector, error) {
		return nnload.LoadModel(ctx, logger, setup)
	})
	s, err := newServer(logger, cfg, fakeDecoder{}, model)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func uploadRequest(t *testing.T, url, field string, content []byte) *http.Request {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("comment", "first"))
	if field != "" {
		fw, err := mw.CreateFormFile(field, "clip.mp4")
		require.NoError(t, err)
		fw.Write(content)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", url, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

type detectJSON struct {
	Summary        string         `json:"detected_summary"`
	Items          map[string]int `json:"detected_items"`
	Seconds        float64        `json:"processing_time_seconds"`
	AnnotatedFrame *string        `json:"annotated_frame_base64_jpg"`
	ModelVariant   string         `json:"model_variant"`
	FrameWidth     int            `json:"frame_width"`
	Error          *string        `json:"error"`
}

func decodeDetect(t *testing.T, rec *httptest.ResponseRecorder) detectJSON {
	r := detectJSON{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

func TestDetectVideo(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r := decodeDetect(t, rec)
	require.Equal(t, "1 car, 1 person", r.Summary)
	require.Equal(t, map[string]int{"car": 1, "person": 1}, r.Items)
	require.Nil(t, r.AnnotatedFrame)
	require.Nil(t, r.Error)
	require.Equal(t, "standard", r.ModelVariant)
	require.Equal(t, 320, r.FrameWidth)
	require.Equal(t, 0, s.temp.Count())

	require.EqualValues(t, 1, testutil.ToFloat64(s.Metrics.requestsTotal.WithLabelValues("ok")))
	require.EqualValues(t, 1, testutil.ToFloat64(s.Metrics.detectionsTotal.WithLabelValues("car")))
}

func TestDetectVideoAnnotated(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, uploadRequest(t, "/detect-video/?annotate=1", "file", []byte("VIDEO data")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r := decodeDetect(t, rec)
	require.NotNil(t, r.AnnotatedFrame)
	jpg, err := base64.StdEncoding.DecodeString(*r.AnnotatedFrame)
	require.NoError(t, err)
	img, err := cimg.Decompress(jpg)
	require.NoError(t, err)
	require.Equal(t, 320, img.Width)
	require.Equal(t, 240, img.Height)

	// Enabled in config, and disabled by the request
	s = newTestServer(t, func(cfg *Config) {
		cfg.AnnotatedFrame.Include = true
	})
	r = decodeDetect(t, serve(s, uploadRequest(t, "/api/detect-video?annotate=0", "file", []byte("VIDEO data"))))
	require.Nil(t, r.AnnotatedFrame)
}

func TestDetectVideoZeroFloor(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		floor := float32(0)
		cfg.ConfidenceFloor = &floor
	})
	r := decodeDetect(t, serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data"))))
	require.Equal(t, "2 cars, 1 person", r.Summary)
	require.Equal(t, map[string]int{"car": 2, "person": 1}, r.Items)
}

func TestDetectVideoCompactVariant(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.Detector.Variant = "compact"
	})
	r := decodeDetect(t, serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data"))))
	require.Equal(t, "compact", r.ModelVariant)
}

func TestDetectVideoErrors(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.MaxUploadMB = 1
	})

	// No file field
	rec := serve(s, uploadRequest(t, "/api/detect-video", "", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No video uploaded", decodeError(t, rec))

	// Not multipart at all
	rec = serve(s, httptest.NewRequest("POST", "/api/detect-video", strings.NewReader("hello")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Undecodable
	rec = serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("garbage")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeError(t, rec), "Could not open video")

	// Unrecognized annotate flag
	rec = serve(s, uploadRequest(t, "/api/detect-video?annotate=sometimes", "file", []byte("VIDEO data")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeError(t, rec), "sometimes")

	// Too large
	rec = serve(s, uploadRequest(t, "/api/detect-video", "file", append([]byte("VIDEO"), make([]byte, 1024*1024)...)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, 0, s.temp.Count())
	require.EqualValues(t, 2, testutil.ToFloat64(s.Metrics.requestsTotal.WithLabelValues("missing_input")))
	require.EqualValues(t, 2, testutil.ToFloat64(s.Metrics.requestsTotal.WithLabelValues("extraction_failure")))
}

func TestDetectVideoDetectorDown(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.Detector.URL = "http://127.0.0.1:1"
		cfg.Detector.TimeoutSeconds = 2
	})
	rec := serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEqual(t, "", decodeError(t, rec))
	require.Equal(t, 0, s.temp.Count())
}

func TestDetectVideoRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit.Requests = 1
		cfg.RateLimit.WindowSeconds = 60
	})
	rec := serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data")))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data")))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPingAndModel(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest("GET", "/api/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"time"`)

	rec = serve(s, httptest.NewRequest("GET", "/api/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	m := struct {
		Variant string   `json:"variant"`
		Weights string   `json:"weights"`
		Model   string   `json:"model"`
		Classes []string `json:"classes"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, "standard", m.Variant)
	require.Equal(t, "yolov8s.pt", m.Weights)
	require.Equal(t, "yolov8s", m.Model)
	require.Equal(t, 80, len(m.Classes))
	require.True(t, s.model.Loaded())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	serve(s, uploadRequest(t, "/api/detect-video", "file", []byte("VIDEO data")))
	rec := serve(s, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "vidinspect_requests_total")
	require.Contains(t, rec.Body.String(), `vidinspect_detections_total{label="person"} 1`)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	e := www.ErrorJSON{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e.Error
}

func TestUploadPage(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/detect-video")

	rec = serve(s, httptest.NewRequest("GET", "/api/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
