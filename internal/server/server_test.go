package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/extract"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/orchestrator"
)

type fakeRunner struct {
	mu        sync.Mutex
	control   orchestrator.Control
	running   bool
	extracted []int64
	prospects []int64
	leadErr   error
}

func (f *fakeRunner) StartCycle(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return "", eris.Wrap(orchestrator.ErrCycleRunning, "test")
	}
	f.running = true
	return "cycle-1", nil
}

func (f *fakeRunner) ExecutionStatus() orchestrator.ExecutionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.control.Status()
	st.Running = f.running
	return orchestrator.ExecutionStatus{Status: st}
}

func (f *fakeRunner) Control() *orchestrator.Control { return &f.control }

func (f *fakeRunner) ExtractPhoneFor(_ context.Context, id int64) (extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, id)
	return extract.Result{}, f.leadErr
}

func (f *fakeRunner) StartOutreachFor(_ context.Context, id int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prospects = append(f.prospects, id)
	return &model.Conversation{LeadID: id}, f.leadErr
}

func newTestServer() (*Server, *fakeRunner) {
	runner := &fakeRunner{}
	srv := New(context.Background(), runner, Config{
		Port:        8765,
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:5174"},
	})
	return srv, runner
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer()
	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRun(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, "cycle-1", body["cycle_id"])

	rec = do(t, h, http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cycle already running", decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["running"])
}

func TestControlEndpoints(t *testing.T) {
	srv, runner := newTestServer()
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/pause", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["paused"])
	assert.True(t, runner.control.Status().Paused)

	rec = do(t, h, http.MethodPost, "/resume", "")
	assert.Equal(t, false, decode(t, rec)["paused"])

	rec = do(t, h, http.MethodPost, "/stop", "")
	assert.Equal(t, true, decode(t, rec)["stop_requested"])
	assert.True(t, runner.control.Status().StopRequested)
}

func TestLeadOperations(t *testing.T) {
	tests := []struct {
		name string
		path string
		got  func(r *fakeRunner) []int64
	}{
		{name: "extract phone", path: "/extract-phone", got: func(r *fakeRunner) []int64 { return r.extracted }},
		{name: "prospect", path: "/prospect", got: func(r *fakeRunner) []int64 { return r.prospects }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, runner := newTestServer()
			h := srv.Handler()

			rec := do(t, h, http.MethodPost, tt.path, `{"lead_id": 42}`)
			assert.Equal(t, http.StatusAccepted, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "accepted", body["status"])
			assert.EqualValues(t, 42, body["lead_id"])

			srv.Wait()
			runner.mu.Lock()
			defer runner.mu.Unlock()
			assert.Equal(t, []int64{42}, tt.got(runner))
		})
	}
}

func TestLeadOperationErrorIsLogged(t *testing.T) {
	srv, runner := newTestServer()
	runner.leadErr = eris.New("lead not eligible")

	rec := do(t, srv.Handler(), http.MethodPost, "/prospect", `{"lead_id": 3}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	srv.Wait()
}

func TestLeadOperationsBadRequest(t *testing.T) {
	srv, runner := newTestServer()
	h := srv.Handler()

	for _, body := range []string{`not json`, `{}`, `{"lead_id": 0}`, `{"lead_id": -4}`, `{"lead_id": "x"}`} {
		rec := do(t, h, http.MethodPost, "/extract-phone", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	srv.Wait()
	assert.Empty(t, runner.extracted)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer()
	rec := do(t, srv.Handler(), http.MethodGet, "/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
