package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/camera"
	"kycflow/internal/camera/netcam"
	"kycflow/internal/camera/stillcam"
	"kycflow/internal/flow"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/logger"
	reportstore "kycflow/internal/report/store"
)

func testConfig() config.Config {
	return config.Config{
		Verification: config.Verification{
			BaseURL:          "http://verification.invalid",
			Timeout:          time.Second,
			FailureThreshold: 3,
			Cooldown:         time.Second,
		},
		Audit:             config.Audit{HashKey: "test-key", BufferSize: 8},
		ServiceSigningKey: "signing-key",
		ServiceIssuer:     "kycflow",
		ServiceAudience:   "verification-service",
		ServiceTokenTTL:   time.Minute,
	}
}

func TestBuildFallsBackToMemory(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &reportstore.MemoryArchive{}, a.Archive)
	assert.IsType(t, &flow.StaticSource{}, a.Source)
	assert.Empty(t, a.Health)
	require.NotNil(t, a.Worker)

	token, err := a.APITokens.Token("")
	require.NoError(t, err)
	_, err = a.APITokens.Validate(token)
	assert.NoError(t, err)
}

func TestBuildUsesRemoteFlowConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Flow.ConfigURL = "http://flow-config.invalid"

	a, err := Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &flow.HTTPSource{}, a.Source)
}

func TestBuildUsesFlowConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flow: [selfie]\n"), 0o600))

	cfg := testConfig()
	cfg.Flow.ConfigFile = path
	a, err := Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &flow.FileSource{}, a.Source)

	cfg.Flow.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Build(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}

func TestBuildRejectsOversizedHashKey(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.HashKey = string(make([]byte, 65))

	_, err := Build(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}

func TestNewDevice(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Camera
		kind string
		want camera.Device
	}{
		{"frame directories", config.Camera{UserDir: "/frames/user"}, "stillcam", &stillcam.Device{}},
		{"snapshot urls", config.Camera{EnvironmentURL: "http://cam/snap.jpg"}, "netcam", &netcam.Device{}},
		{"nothing configured", config.Camera{}, "none", &stillcam.Device{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			device, kind := NewDevice(tc.cfg)
			assert.Equal(t, tc.kind, kind)
			assert.IsType(t, tc.want, device)
		})
	}
}
