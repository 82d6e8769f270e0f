package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports/mocks"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/dispatch"
)

const testAdminKey = "secret-key"

type fakeTrigger struct {
	mu        sync.Mutex
	ids       []string
	err       error
	onTrigger func(feedbackID string)
}

func (f *fakeTrigger) Trigger(_ context.Context, feedbackID string) error {
	f.mu.Lock()
	f.ids = append(f.ids, feedbackID)
	f.mu.Unlock()

	if f.onTrigger != nil {
		f.onTrigger(feedbackID)
	}

	return f.err
}

type fixture struct {
	handler  http.Handler
	gateway  *mocks.Gateway
	evidence *mocks.EvidenceStore
	trigger  *fakeTrigger
}

func newFixture(t *testing.T, adminKey string) *fixture {
	t.Helper()

	f := &fixture{
		gateway:  mocks.NewGateway(),
		evidence: mocks.NewEvidenceStore(),
		trigger:  &fakeTrigger{},
	}

	f.handler = NewHandler(Deps{
		Feedback: f.gateway,
		Evidence: f.evidence,
		Trigger:  f.trigger,
		AdminKey: adminKey,
	})

	return f
}

func (f *fixture) do(method, path, contentType, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

func TestIngest_Accepts(t *testing.T) {
	f := newFixture(t, "")

	body := `{"text":"  The export   button\n\tcrashes the app  ","source":"support","title":"Export crash","author":"ana","timestamp":"2024-03-05 10:20:30"}`
	rec := f.do(http.MethodPost, "/api/ingest", "application/json; charset=utf-8", body, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[statusBody](t, rec)
	assert.Equal(t, "queued", resp.Status)
	require.NotEmpty(t, resp.ID)

	fb, err := f.gateway.GetFeedback(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, fb.Status)
	assert.Equal(t, "support", fb.Source)
	assert.Equal(t, "Export crash", fb.Title)
	assert.Equal(t, "The export button crashes the app", fb.Snippet)
	assert.Equal(t, "evidence/"+resp.ID+".json", fb.EvidenceRef)

	ev, ok := f.evidence.Get(fb.EvidenceRef)
	require.True(t, ok)
	assert.Equal(t, "The export   button\n\tcrashes the app", ev.Text)
	assert.Equal(t, "ana", ev.Author)
	assert.Equal(t, "2024-03-05T10:20:30Z", ev.Timestamp)

	assert.Equal(t, []string{resp.ID}, f.trigger.ids)
}

func TestIngest_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{name: "not json", contentType: "text/plain", body: `{"text":"a","source":"b"}`, wantStatus: http.StatusUnsupportedMediaType, wantCode: codeUnsupportedMedia},
		{name: "no content type", contentType: "", body: `{"text":"a","source":"b"}`, wantStatus: http.StatusUnsupportedMediaType, wantCode: codeUnsupportedMedia},
		{name: "malformed", contentType: "application/json", body: `{"text":`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidJSON},
		{name: "text not a string", contentType: "application/json", body: `{"text":5,"source":"b"}`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidJSON},
		{name: "missing text", contentType: "application/json", body: `{"source":"b"}`, wantStatus: http.StatusBadRequest, wantCode: codeMissingText},
		{name: "blank text", contentType: "application/json", body: `{"text":"   ","source":"b"}`, wantStatus: http.StatusBadRequest, wantCode: codeMissingText},
		{name: "missing source", contentType: "application/json", body: `{"text":"hello"}`, wantStatus: http.StatusBadRequest, wantCode: codeMissingSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")

			rec := f.do(http.MethodPost, "/api/ingest", tt.contentType, tt.body, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode[errorBody](t, rec).Code)
			assert.Empty(t, f.trigger.ids)
		})
	}
}

func TestIngest_TriggerFailureMarksFeedbackFailed(t *testing.T) {
	f := newFixture(t, "")
	f.trigger.err = mocks.ErrInjected

	rec := f.do(http.MethodPost, "/api/ingest", "application/json", `{"text":"hello","source":"web"}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, codeWorkflowStartFailed, decode[errorBody](t, rec).Code)

	require.Len(t, f.trigger.ids, 1)
	fb, err := f.gateway.GetFeedback(context.Background(), f.trigger.ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, fb.Status)
	assert.Equal(t, domain.ErrorCodeWorkflowStartFailed, fb.ErrorCode)
}

type runnerFunc func(ctx context.Context, feedbackID string) error

func (f runnerFunc) Run(ctx context.Context, _ ports.StepLog, _, feedbackID string) error {
	return f(ctx, feedbackID)
}

// ctxAwareGateway fails writes on a done context, like the pgx pool does.
func ctxAwareGateway() *mocks.Gateway {
	gw := mocks.NewGateway()
	gw.UpdateFeedbackStatusFn = func(ctx context.Context, _ string, _ domain.FeedbackStatus, _, _ string) error {
		return ctx.Err()
	}

	return gw
}

func ingestWithContext(ctx context.Context, handler http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{"text":"Checkout fails","source":"web"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func onlyFeedback(t *testing.T, gw *mocks.Gateway, ids []string) *domain.Feedback {
	t.Helper()

	require.Len(t, ids, 1)

	fb, err := gw.GetFeedback(context.Background(), ids[0])
	require.NoError(t, err)

	return fb
}

func TestIngest_InlineRunCompletesAfterClientDisconnect(t *testing.T) {
	gw := ctxAwareGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string

	runner := runnerFunc(func(runCtx context.Context, feedbackID string) error {
		ids = append(ids, feedbackID)
		cancel()

		if err := gw.UpdateFeedbackStatus(runCtx, feedbackID, domain.StatusProcessing, "", ""); err != nil {
			return err
		}

		return gw.UpdateFeedbackStatus(runCtx, feedbackID, domain.StatusReady, "", "")
	})

	handler := NewHandler(Deps{
		Feedback: gw,
		Evidence: mocks.NewEvidenceStore(),
		Trigger:  dispatch.NewDispatcher(nil, runner, nil),
	})

	rec := ingestWithContext(ctx, handler)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ready", decode[statusBody](t, rec).Status)
	assert.Equal(t, domain.StatusReady, onlyFeedback(t, gw, ids).Status)
}

func TestIngest_InterruptedInlineRunIsRecordedAsStartFailure(t *testing.T) {
	gw := ctxAwareGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string

	runner := runnerFunc(func(runCtx context.Context, feedbackID string) error {
		ids = append(ids, feedbackID)

		if err := gw.UpdateFeedbackStatus(runCtx, feedbackID, domain.StatusProcessing, "", ""); err != nil {
			return err
		}

		cancel()

		return errors.New("pipeline interrupted")
	})

	handler := NewHandler(Deps{
		Feedback: gw,
		Evidence: mocks.NewEvidenceStore(),
		Trigger:  dispatch.NewDispatcher(nil, runner, nil),
	})

	rec := ingestWithContext(ctx, handler)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, codeWorkflowStartFailed, decode[errorBody](t, rec).Code)

	fb := onlyFeedback(t, gw, ids)
	assert.Equal(t, domain.StatusFailed, fb.Status)
	assert.Equal(t, domain.ErrorCodeWorkflowStartFailed, fb.ErrorCode)
}

func TestIngest_ReportsStoredStatus(t *testing.T) {
	f := newFixture(t, "")
	f.trigger.onTrigger = func(id string) {
		_ = f.gateway.UpdateFeedbackStatus(context.Background(), id, domain.StatusProcessing, "", "")
	}

	rec := f.do(http.MethodPost, "/api/ingest", "application/json", `{"text":"hello","source":"web"}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "processing", decode[statusBody](t, rec).Status)
}

func TestIngest_EvidenceFailure(t *testing.T) {
	f := newFixture(t, "")
	f.evidence.PutEvidenceFn = func(context.Context, string, domain.Evidence) error { return mocks.ErrInjected }

	rec := f.do(http.MethodPost, "/api/ingest", "application/json", `{"text":"hello","source":"web"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.trigger.ids)
}

func seedFailed(f *fixture) string {
	id := "11111111-1111-1111-1111-111111111111"
	f.gateway.SeedFeedback(&domain.Feedback{
		ID:           id,
		Source:       "web",
		Status:       domain.StatusFailed,
		ErrorCode:    domain.ErrorCodeWorkflowError,
		ErrorMessage: "db down",
	})

	return id
}

func TestRetry_RequeuesFeedback(t *testing.T) {
	f := newFixture(t, testAdminKey)
	id := seedFailed(f)

	rec := f.do(http.MethodPost, "/api/retry/"+id, "", "", map[string]string{AdminKeyHeader: testAdminKey})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, statusBody{ID: id, Status: "queued"}, decode[statusBody](t, rec))

	fb, err := f.gateway.GetFeedback(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, fb.Status)
	assert.Empty(t, fb.ErrorCode)
	assert.Empty(t, fb.ErrorMessage)
	assert.Equal(t, []string{id}, f.trigger.ids)
}

func TestRetry_AdminKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "wrong key", configured: testAdminKey, header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing key", configured: testAdminKey, header: "", wantStatus: http.StatusUnauthorized},
		{name: "open when unconfigured", configured: "", header: "", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.configured)
			id := seedFailed(f)

			header := map[string]string{}
			if tt.header != "" {
				header[AdminKeyHeader] = tt.header
			}

			rec := f.do(http.MethodPost, "/api/retry/"+id, "", "", header)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, codeUnauthorized, decode[errorBody](t, rec).Code)
				assert.Empty(t, f.trigger.ids)
			}
		})
	}
}

func TestRetry_UnknownID(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/api/retry/22222222-2222-2222-2222-222222222222", "", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decode[errorBody](t, rec).Code)
	assert.Empty(t, f.trigger.ids)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, "")

	for _, path := range []string{"/api/nope", "/elsewhere"} {
		rec := f.do(http.MethodGet, path, "", "", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, errorBody{Error: "Not found", Code: codeNotFound}, decode[errorBody](t, rec))
	}

	rec := f.do(http.MethodGet, "/api/ingest", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNormalizeText(t *testing.T) {
	// "e" + combining acute composes to a single rune under NFC.
	assert.Equal(t, "caf\u00e9", NormalizeText("  cafe\u0301 "))
	assert.Equal(t, MaxTextLength, len([]rune(NormalizeText(strings.Repeat("é", MaxTextLength+10)))))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("a \n\t b   c"))
	assert.Len(t, []rune(Snippet(strings.Repeat("x ", 300))), MaxSnippetLength)
}

func TestNormalizeTimestamp(t *testing.T) {
	fallback := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty uses fallback", raw: "", want: "2025-06-01T12:00:00Z"},
		{name: "rfc3339 offset", raw: "2024-01-02T03:04:05+02:00", want: "2024-01-02T01:04:05Z"},
		{name: "loose date", raw: "2024-01-02", want: "2024-01-02T00:00:00Z"},
		{name: "unparseable kept", raw: "last tuesday", want: "last tuesday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestamp(tt.raw, fallback))
		})
	}
}
