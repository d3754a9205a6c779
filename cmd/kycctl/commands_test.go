package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/app"
	"kycflow/pkg/platform/svctoken"
)

func runCLI(t *testing.T, args []string, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// isolateEnv keeps the host environment from pointing the CLI at real
// backends.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDIS_URL", "POSTGRES_DSN", "KAFKA_BROKERS", "FLOW_CONFIG_URL", "FLOW_CONFIG_FILE",
		"CAMERA_USER_DIR", "CAMERA_ENVIRONMENT_DIR", "CAMERA_USER_URL", "CAMERA_ENVIRONMENT_URL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("VERIFICATION_DOCUMENT_OCR", "false")
}

func writeFrame(t *testing.T, dir string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := range 32 {
		img.Set(x, x%24, color.White)
	}
	f, err := os.Create(filepath.Join(dir, "frame-001.png"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestCatalogCommand(t *testing.T) {
	t.Run("lists countries", func(t *testing.T) {
		out, _, err := runCLI(t, []string{"catalog"}, "")
		require.NoError(t, err)
		assert.Contains(t, out, "United States")
		assert.Contains(t, out, "US")
	})

	t.Run("lists the document types of a country", func(t *testing.T) {
		out, _, err := runCLI(t, []string{"catalog", "us"}, "")
		require.NoError(t, err)
		assert.Contains(t, out, "Passport")
		assert.Contains(t, out, "PP")
	})

	t.Run("rejects an unknown country", func(t *testing.T) {
		_, _, err := runCLI(t, []string{"catalog", "ZZ"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown country")
	})
}

func TestTokenCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SERVICE_SIGNING_KEY", "cli-test-key")
	t.Setenv("SERVICE_TOKEN_ISSUER", "kycflow")

	out, _, err := runCLI(t, []string{"token", "--verification-id", "ver-42"}, "")
	require.NoError(t, err)

	validator := svctoken.NewIssuer("cli-test-key", "kycflow", app.APIAudience, time.Minute)
	claims, err := validator.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ver-42", claims.VerificationID)
}

func TestStepsCommand(t *testing.T) {
	isolateEnv(t)

	out, _, err := runCLI(t, []string{"steps"}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "country_selection")
	assert.Contains(t, out, "mrz")
	assert.Contains(t, out, "MRZ:            true")
}

func TestReportsListRequiresUser(t *testing.T) {
	_, _, err := runCLI(t, []string{"reports", "list"}, "")
	require.Error(t, err)
}

type verificationStub struct {
	mu    sync.Mutex
	paths []string
}

func (v *verificationStub) called(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Contains(v.paths, path)
}

func (v *verificationStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	v.paths = append(v.paths, r.URL.Path)
	v.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/document/quality":
		_, _ = io.WriteString(w, `{"message":"CLEAR IMAGE"}`)
	case "/liveness":
		_, _ = io.WriteString(w, `{"live":"REAL"}`)
	case "/mrz":
		_, _ = io.WriteString(w, `{"success":true,"data":{"status":"success","parsed_data":{"surname":"DOE"}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestRunCommand(t *testing.T) {
	isolateEnv(t)
	stub := &verificationStub{}
	server := httptest.NewServer(stub)
	defer server.Close()
	t.Setenv("VERIFICATION_BASE_URL", server.URL)

	userFrames, envFrames, outDir := t.TempDir(), t.TempDir(), t.TempDir()
	writeFrame(t, userFrames)
	writeFrame(t, envFrames)

	t.Run("completes a flow and writes the report", func(t *testing.T) {
		// one Enter per capture step: front, back, mrz, selfie
		out, _, err := runCLI(t, []string{
			"run", "--user", "user-1",
			"--user-frames", userFrames,
			"--environment-frames", envFrames,
			"--country", "US",
			"--document-type", "Passport",
			"--out", outDir,
		}, "\n\n\n\n")
		require.NoError(t, err, out)
		assert.Contains(t, out, "Report written to")

		files, err := filepath.Glob(filepath.Join(outDir, "kyc-verification-*.json"))
		require.NoError(t, err)
		require.Len(t, files, 1)
		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), `"status": "completed"`)
		assert.Contains(t, string(data), `"mrzScan": true`)
		assert.True(t, stub.called("/liveness"))
	})

	t.Run("writes a pdf report", func(t *testing.T) {
		pdfDir := t.TempDir()
		out, _, err := runCLI(t, []string{
			"run", "--user", "user-3",
			"--user-frames", userFrames,
			"--environment-frames", envFrames,
			"--country", "US",
			"--document-type", "Passport",
			"--out", pdfDir,
			"--format", "pdf",
		}, "\n\n\n\n")
		require.NoError(t, err, out)

		files, err := filepath.Glob(filepath.Join(pdfDir, "kyc-verification-*.pdf"))
		require.NoError(t, err)
		require.Len(t, files, 1)
		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
	})

	t.Run("rejects an unknown format", func(t *testing.T) {
		_, _, err := runCLI(t, []string{"run", "--user", "user-4", "--format", "xml"}, "")
		assert.ErrorContains(t, err, "unsupported report format")
	})

	t.Run("end of input aborts", func(t *testing.T) {
		_, _, err := runCLI(t, []string{
			"run", "--user", "user-2",
			"--user-frames", userFrames,
			"--environment-frames", envFrames,
			"--out", outDir,
		}, "")
		require.ErrorIs(t, err, errAborted)
	})
}

func TestPaint(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, shouldColorize(&buf))
	assert.Equal(t, "accepted", paint("accepted", ansiGreen, false))
	assert.Equal(t, ansiRed+"failed"+ansiReset, paint("failed", outcomeColor("failed"), true))
	assert.Equal(t, "other", paint("other", outcomeColor("other"), true))
}
