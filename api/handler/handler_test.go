package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/certcheck/models"
	"github.com/use-agent/certcheck/parser"
	"github.com/use-agent/certcheck/session"
	"github.com/use-agent/certcheck/verify"
)

type fakeVerifier struct {
	started   *verify.Started
	startErr  error
	snap      session.Snapshot
	pollErr   error
	gotCode   string
	deadlined bool

	startDeadline time.Time
}

func (f *fakeVerifier) Start(ctx context.Context, code string) (*verify.Started, error) {
	f.gotCode = code
	f.startDeadline, _ = ctx.Deadline()
	return f.started, f.startErr
}

func (f *fakeVerifier) Poll(ctx context.Context, _ string) (session.Snapshot, error) {
	_, f.deadlined = ctx.Deadline()
	return f.snap, f.pollErr
}

func (f *fakeVerifier) MaskedExpectedID() string { return "123.***.456-**" }

type nopPage struct{}

func (nopPage) Text(context.Context) (string, bool)       { return "", false }
func (nopPage) HTML(context.Context) (string, bool)       { return "", false }
func (nopPage) Screenshot(context.Context) ([]byte, bool) { return nil, false }
func (nopPage) Close() error                              { return nil }

type fakeProber struct{ probe models.PortalProbe }

func (p fakeProber) Probe(context.Context) models.PortalProbe { return p.probe }

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startRouter(v Verifier) *gin.Engine {
	r := gin.New()
	r.POST("/verifications", StartVerification(v, time.Minute))
	return r
}

func TestStartVerification(t *testing.T) {
	v := &fakeVerifier{started: &verify.Started{
		Session: session.Snapshot{
			ID:       "ver_0123456789ab",
			Status:   session.StatusPending,
			PageOpen: true,
		},
		CodeFilled: true,
	}}

	w := do(startRouter(v), http.MethodPost, "/verifications", `{"code":" ABC123 "}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp models.StartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StartResponse{
		VerificationID: "ver_0123456789ab",
		MaskedID:       "123.***.456-**",
		Status:         "pending",
		Opened:         true,
		CodeFilled:     true,
	}, resp)
	assert.Equal(t, " ABC123 ", v.gotCode)
}

func TestStartVerification_BoundedByTimeout(t *testing.T) {
	v := &fakeVerifier{started: &verify.Started{
		Session: session.Snapshot{ID: "ver_0123456789ab", Status: session.StatusPending},
	}}
	r := gin.New()
	r.POST("/verifications", StartVerification(v, 5*time.Second))

	before := time.Now()
	w := do(r, http.MethodPost, "/verifications", `{"code":"ABC123"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	require.False(t, v.startDeadline.IsZero(), "Start must run under a deadline")
	assert.WithinDuration(t, before.Add(5*time.Second), v.startDeadline, time.Second)
}

func TestStartVerification_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
		code     string
	}{
		{"missing code", `{}`, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"malformed json", `{"code":`, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"blank code", `{"code":"   "}`, verify.ErrEmptyCode, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{
			"portal down", `{"code":"X"}`,
			models.NewAPIError(models.ErrCodePortalUnavailable, "navigation to portal failed", errors.New("dns")),
			http.StatusBadGateway, models.ErrCodePortalUnavailable,
		},
		{
			"portal timeout", `{"code":"X"}`,
			models.NewAPIError(models.ErrCodePortalTimeout, "navigation to portal failed", context.DeadlineExceeded),
			http.StatusGatewayTimeout, models.ErrCodePortalTimeout,
		},
		{"unexpected", `{"code":"X"}`, errors.New("boom"), http.StatusInternalServerError, models.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{startErr: tt.startErr}
			w := do(startRouter(v), http.MethodPost, "/verifications", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestPollVerification(t *testing.T) {
	year := 2023
	v := &fakeVerifier{snap: session.Snapshot{
		ID:     "ver_0123456789ab",
		Status: session.StatusNeedsReview,
		Result: &parser.Result{Year: &year, Areas: map[parser.Area]*float64{}},
	}}
	r := gin.New()
	r.GET("/verifications/:id", PollVerification(v, time.Second))

	w := do(r, http.MethodGet, "/verifications/ver_0123456789ab", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, v.deadlined, "poll must run under a deadline")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "needs_review", body["status"])
	assert.Equal(t, "ver_0123456789ab", body["verification_id"])
	assert.Equal(t, 2023.0, body["result"].(map[string]any)["year"])
}

func TestPollVerification_PendingHasNoResult(t *testing.T) {
	v := &fakeVerifier{snap: session.Snapshot{ID: "ver_0123456789ab", Status: session.StatusPending}}
	r := gin.New()
	r.GET("/verifications/:id", PollVerification(v, time.Second))

	w := do(r, http.MethodGet, "/verifications/ver_0123456789ab", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"verification_id":"ver_0123456789ab","status":"pending"}`, w.Body.String())
}

func TestPollVerification_NotFound(t *testing.T) {
	v := &fakeVerifier{pollErr: session.ErrNotFound}
	r := gin.New()
	r.GET("/verifications/:id", PollVerification(v, time.Second))

	w := do(r, http.MethodGet, "/verifications/ver_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"not_found"}`, w.Body.String())
}

func TestAudit(t *testing.T) {
	store := session.NewStore(0)
	t.Cleanup(store.Close)

	sess, err := store.Create("ABC", "12399945678", nopPage{})
	require.NoError(t, err)
	sess.Attempt(func(session.Page) *session.Decision {
		return &session.Decision{
			Status: session.StatusApproved,
			Audit: session.AuditEntry{
				Timestamp:         time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC),
				Screenshot:        []byte("png"),
				LayoutFingerprint: 0xff,
				Transcript:        "# Resultado",
			},
		}
	})

	r := gin.New()
	r.GET("/verifications/:id/audit", Audit(store))

	w := do(r, http.MethodGet, "/verifications/"+sess.ID+"/audit", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.AuditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "approved", resp.Status)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "cG5n", resp.Entries[0].Screenshot)
	assert.Equal(t, "00000000000000ff", resp.Entries[0].LayoutFingerprint)
	assert.Equal(t, "# Resultado", resp.Entries[0].Transcript)

	w = do(r, http.MethodGet, "/verifications/ver_missing/audit", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	store := session.NewStore(0)
	t.Cleanup(store.Close)
	_, err := store.Create("ABC", "12399945678", nopPage{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  string
		probe  models.PortalProbe
		status string
		probed bool
	}{
		{"reachable", "", models.PortalProbe{Reachable: true, StatusCode: 200}, "healthy", true},
		{"unreachable", "", models.PortalProbe{Error: "dial tcp: refused"}, "degraded", true},
		{"probe disabled", "?probe=false", models.PortalProbe{}, "healthy", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", Health(store, fakeProber{probe: tt.probe}, time.Now()))

			w := do(r, http.MethodGet, "/health"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp models.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, 1, resp.ActiveSessions)
			assert.Equal(t, tt.probed, resp.Portal != nil)
		})
	}
}

func TestIndex(t *testing.T) {
	r := gin.New()
	r.SetHTMLTemplate(IndexTemplate)
	r.GET("/", Index(&fakeVerifier{}))

	w := do(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "123.***.456-**")
	assert.NotContains(t, w.Body.String(), "12399945678")
}
