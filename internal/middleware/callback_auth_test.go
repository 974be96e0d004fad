package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/testutil/mocks"
)

func newCallbackRouter(auth *CallbackAuth, seen *string) http.Handler {
	r := chi.NewRouter()
	r.With(auth.Middleware).Post("/callbacks/{provider}", func(w http.ResponseWriter, r *http.Request) {
		*seen = CallbackSourceIP(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	r.With(auth.Middleware).Get("/callbacks/{provider}", func(w http.ResponseWriter, r *http.Request) {
		*seen = CallbackSourceIP(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func callback(method, provider, remote, body, signature string) *http.Request {
	target := "/callbacks/" + provider
	var req *http.Request
	if method == http.MethodGet {
		req = httptest.NewRequest(method, target+"?"+body, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.RemoteAddr = remote
	if signature != "" {
		req.Header.Set(CallbackSignatureHeader, signature)
	}
	return req
}

func TestCallbackAuth(t *testing.T) {
	const body = `{"reference_id":"R-1","status_code":"00"}`
	store := mocks.NewCallbackAudit(map[string][]string{
		"upiqr":    {"203.0.113.0/24"},
		"impsbank": {"198.51.100.9"},
	})
	auth := NewCallbackAuth(store, CallbackAuthConfig{
		Secrets: map[string]string{"upiqr": "cb-secret"},
	}, zap.NewNop())

	var seen string
	router := newCallbackRouter(auth, &seen)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"allowlisted and signed", callback(http.MethodPost, "upiqr", "203.0.113.5:443", body, Sign([]byte(body), "cb-secret")), http.StatusOK},
		{"uppercase signature", callback(http.MethodPost, "upiqr", "203.0.113.5:443", body, strings.ToUpper(Sign([]byte(body), "cb-secret"))), http.StatusOK},
		{"address outside allowlist", callback(http.MethodPost, "upiqr", "192.0.2.1:443", body, Sign([]byte(body), "cb-secret")), http.StatusForbidden},
		{"missing signature", callback(http.MethodPost, "upiqr", "203.0.113.5:443", body, ""), http.StatusUnauthorized},
		{"wrong secret", callback(http.MethodPost, "upiqr", "203.0.113.5:443", body, Sign([]byte(body), "other")), http.StatusUnauthorized},
		{"single address entry, no secret", callback(http.MethodPost, "impsbank", "198.51.100.9:443", body, ""), http.StatusOK},
		{"unknown provider has empty allowlist", callback(http.MethodPost, "acme", "203.0.113.5:443", body, ""), http.StatusForbidden},
		{"signed query string", callback(http.MethodGet, "upiqr", "203.0.113.5:443", "reference_id=R-1&status_code=00", Sign([]byte("reference_id=R-1&status_code=00"), "cb-secret")), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, "203.0.113.5", seen)

	records := store.Records()
	require.Len(t, records, len(tests))
	authorized := 0
	for _, rec := range records {
		if rec.Authorized {
			authorized++
		} else {
			assert.NotEmpty(t, rec.FailureReason)
		}
	}
	assert.Equal(t, 4, authorized)
}

func TestCallbackAuth_SignedBodyReachesHandler(t *testing.T) {
	const body = `{"reference_id":"R-2"}`
	store := mocks.NewCallbackAudit(map[string][]string{"upiqr": {"203.0.113.0/24"}})
	auth := NewCallbackAuth(store, CallbackAuthConfig{Secrets: map[string]string{"upiqr": "s"}}, zap.NewNop())

	var got string
	r := chi.NewRouter()
	r.With(auth.Middleware).Post("/callbacks/{provider}", func(w http.ResponseWriter, r *http.Request) {
		b := new(bytes.Buffer)
		_, _ = b.ReadFrom(r.Body)
		got = b.String()
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, callback(http.MethodPost, "upiqr", "203.0.113.1:1", body, Sign([]byte(body), "s")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, got)
}

func TestCallbackAuth_AllowPrivateIPs(t *testing.T) {
	store := mocks.NewCallbackAudit(nil)
	auth := NewCallbackAuth(store, CallbackAuthConfig{AllowPrivateIPs: true}, zap.NewNop())
	var seen string
	router := newCallbackRouter(auth, &seen)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, callback(http.MethodPost, "upiqr", "127.0.0.1:9000", "{}", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type flakyAllowlist struct {
	*mocks.CallbackAudit
	fail bool
}

func (f *flakyAllowlist) ListAllowedCIDRs(ctx context.Context, provider string) ([]string, error) {
	if f.fail {
		return nil, errors.New("db unavailable")
	}
	return f.CallbackAudit.ListAllowedCIDRs(ctx, provider)
}

func TestCallbackAuth_KeepsCachedAllowlistWhenRefreshFails(t *testing.T) {
	store := &flakyAllowlist{CallbackAudit: mocks.NewCallbackAudit(map[string][]string{"upiqr": {"203.0.113.0/24"}})}
	auth := NewCallbackAuth(store, CallbackAuthConfig{RefreshInterval: time.Minute}, zap.NewNop())

	now := time.Now()
	auth.now = func() time.Time { return now }

	allowed, err := auth.isAllowed(context.Background(), "upiqr", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, allowed)

	store.fail = true
	now = now.Add(2 * time.Minute)
	allowed, err = auth.isAllowed(context.Background(), "upiqr", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Nothing cached for this provider yet
	_, err = auth.isAllowed(context.Background(), "impsbank", "203.0.113.7")
	assert.Error(t, err)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	dev := SecurityHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec = httptest.NewRecorder()
	dev.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
