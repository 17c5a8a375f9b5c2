package yolohttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	response   string
	status     int
	lastModel  string
	lastConf   string
	lastImage  []byte
	numPredict int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		w.WriteHeader(f.status)
	case "/predict":
		f.numPredict++
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastModel = r.FormValue("model")
		f.lastConf = r.FormValue("conf")
		file, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastImage, _ = io.ReadAll(file)
		file.Close()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		w.Write([]byte(f.response))
	default:
		http.NotFound(w, r)
	}
}

func newTestDetector(t *testing.T, f *fakeServer, variant nn.ModelVariant) *Detector {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	det, err := NewDetector(Config{URL: srv.URL + "/", Variant: variant})
	require.NoError(t, err)
	t.Cleanup(det.Close)
	return det
}

func TestDetectObjects(t *testing.T) {
	f := &fakeServer{
		status: 200,
		response: `{"detections": [
			{"class_id": 2, "confidence": 0.9, "box": [10.7, 20.2, 50.9, 60]},
			{"class_id": 0, "confidence": 0.6, "box": [-5, -5, 500, 40]}
		]}`,
	}
	det := newTestDetector(t, f, nn.ModelVariantCompact)
	img := cimg.NewImage(320, 240, cimg.PixelFormatRGB)
	objects, err := det.DetectObjects(context.Background(), img, &nn.DetectionParams{ProbabilityThreshold: 0.5})
	require.NoError(t, err)
	require.Equal(t, 1, f.numPredict)
	require.Equal(t, "yolov8n.pt", f.lastModel)
	require.Equal(t, "0.5", f.lastConf)

	// The server received a decodable JPEG of the same size
	sent, err := cimg.Decompress(f.lastImage)
	require.NoError(t, err)
	require.Equal(t, 320, sent.Width)
	require.Equal(t, 240, sent.Height)

	require.Equal(t, 2, len(objects))
	require.Equal(t, "car", objects[0].Label)
	require.Equal(t, nn.Rect{X: 10, Y: 20, Width: 40, Height: 40}, objects[0].Box)
	require.Equal(t, "person", objects[1].Label)
	require.Equal(t, float32(0.6), objects[1].Confidence)
	require.Equal(t, nn.Rect{X: 0, Y: 0, Width: 320, Height: 40}, objects[1].Box)
}

func TestDetectObjectsEmpty(t *testing.T) {
	f := &fakeServer{status: 200, response: `{"detections": []}`}
	det := newTestDetector(t, f, "")
	require.Equal(t, nn.ModelVariantStandard, det.Variant())
	objects, err := det.DetectObjects(context.Background(), cimg.NewImage(16, 16, cimg.PixelFormatRGB), nil)
	require.NoError(t, err)
	require.Equal(t, 0, len(objects))
	require.Equal(t, "yolov8s.pt", f.lastModel)
}

func TestDetectObjectsErrors(t *testing.T) {
	img := cimg.NewImage(16, 16, cimg.PixelFormatRGB)

	f := &fakeServer{status: 500, response: `{"error": "CUDA out of memory"}`}
	det := newTestDetector(t, f, "")
	_, err := det.DetectObjects(context.Background(), img, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "CUDA out of memory")

	f = &fakeServer{status: 200, response: `{"detections": [{"class_id": 999, "confidence": 0.9, "box": [0, 0, 1, 1]}]}`}
	det = newTestDetector(t, f, "")
	_, err = det.DetectObjects(context.Background(), img, nil)
	require.Error(t, err)

	f = &fakeServer{status: 200, response: `{"detections": [{"class_id": 1, "confidence": 0.9, "box": [0, 0, 1]}]}`}
	det = newTestDetector(t, f, "")
	_, err = det.DetectObjects(context.Background(), img, nil)
	require.Error(t, err)

	f = &fakeServer{status: 200, response: `not json`}
	det = newTestDetector(t, f, "")
	_, err = det.DetectObjects(context.Background(), img, nil)
	require.Error(t, err)
}

func TestCheckHealth(t *testing.T) {
	f := &fakeServer{status: 200}
	det := newTestDetector(t, f, "")
	require.NoError(t, det.CheckHealth(context.Background()))

	f.status = 503
	require.Error(t, det.CheckHealth(context.Background()))
}

func TestCustomClassTable(t *testing.T) {
	f := &fakeServer{status: 200, response: `{"detections": [{"class_id": 1, "confidence": 0.7, "box": [0, 0, 4, 4]}]}`}
	srv := httptest.NewServer(f)
	defer srv.Close()
	det, err := NewDetector(Config{URL: srv.URL, Model: &nn.ModelConfig{Classes: []string{"QR", "Stamp"}}})
	require.NoError(t, err)
	objects, err := det.DetectObjects(context.Background(), cimg.NewImage(8, 8, cimg.PixelFormatRGB), nil)
	require.NoError(t, err)
	require.Equal(t, "stamp", objects[0].Label)

	_, err = NewDetector(Config{})
	require.Error(t, err)
}
