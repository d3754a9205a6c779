package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/pkg/platform/svctoken"
	"kycflow/pkg/requestcontext"
	"kycflow/pkg/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	testutil.When(t, "the caller supplies an id", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/")
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := testutil.DoRequest(h, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
	})

	testutil.When(t, "no id is supplied", func(t *testing.T) {
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})
}

func TestRequestTime(t *testing.T) {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
	assert.Equal(t, first, second)
}

func TestClientMetadataAndDevice(t *testing.T) {
	var ip, ua string
	var device requestcontext.Device
	var hasDevice bool
	h := ClientMetadata(Device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
		device, hasDevice = requestcontext.DeviceInfo(r.Context())
	})))

	testutil.Given(t, "an iPhone behind a proxy", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/")
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		testutil.DoRequest(h, req)

		assert.Equal(t, "203.0.113.7", ip)
		assert.Contains(t, ua, "iPhone")
		require.True(t, hasDevice)
		assert.True(t, device.Mobile)
		assert.Equal(t, "iPhone", device.Platform)
	})

	testutil.Given(t, "a request without a user agent", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/")
		req.RemoteAddr = "192.0.2.1:5555"
		testutil.DoRequest(h, req)
		assert.Equal(t, "192.0.2.1", ip)
		assert.False(t, hasDevice)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"internal server error"}`, rr.Body.String())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/v1/flows"))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/v1/flows"`)
	assert.Contains(t, buf.String(), `"request_id"`)
}

func TestRequireServiceToken(t *testing.T) {
	issuer := svctoken.NewIssuer("secret", "kycflow", "kycflow-api", time.Minute)
	h := RequireServiceToken(issuer, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	testutil.When(t, "the token is missing", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	testutil.When(t, "the token is signed with another key", func(t *testing.T) {
		other, err := svctoken.NewIssuer("other", "kycflow", "kycflow-api", time.Minute).Token("")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		assert.Equal(t, http.StatusUnauthorized, testutil.DoRequest(h, req).Code)
	})

	testutil.When(t, "the token is valid", func(t *testing.T) {
		token, err := issuer.Token("")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, req).Code)
	})
}

func TestTracing(t *testing.T) {
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/v1/flows"))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	// the global no-op provider records nothing, so no trace id is logged
	assert.Empty(t, traceID(testutil.NewRequest(t, http.MethodGet, "/")))
}
