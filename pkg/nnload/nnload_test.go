package nnload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/stretchr/testify/require"
)

func inferenceServer(t *testing.T, healthy bool) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections": []}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLoadModel(t *testing.T) {
	log := logs.NewTestingLog(t)
	url := inferenceServer(t, true)

	model, err := LoadModel(context.Background(), log, ModelSetup{URL: url, Variant: nn.ModelVariantStandard})
	require.NoError(t, err)
	require.Equal(t, 80, len(model.Config().Classes))
	model.Close()

	model, err = LoadModel(context.Background(), log, ModelSetup{URL: url, Serialize: true, DedupeIoU: 0.7})
	require.NoError(t, err)
	_, isSerialized := model.(*nn.Serialized)
	require.True(t, isSerialized)
	model.Close()
}

func TestLoadModelClassFile(t *testing.T) {
	log := logs.NewTestingLog(t)
	url := inferenceServer(t, true)
	classFile := filepath.Join(t.TempDir(), "classes.txt")
	require.NoError(t, os.WriteFile(classFile, []byte("qr\nsignature\nstamp\n"), 0644))

	model, err := LoadModel(context.Background(), log, ModelSetup{URL: url, ClassFile: classFile})
	require.NoError(t, err)
	defer model.Close()
	require.Equal(t, []string{"qr", "signature", "stamp"}, model.Config().Classes)
}

func TestLoadModelUnhealthy(t *testing.T) {
	log := logs.NewTestingLog(t)
	_, err := LoadModel(context.Background(), log, ModelSetup{URL: inferenceServer(t, false)})
	require.Error(t, err)

	_, err = LoadModel(context.Background(), log, ModelSetup{URL: inferenceServer(t, true), ModelConfigFile: "/nonexistent.json"})
	require.Error(t, err)
}
