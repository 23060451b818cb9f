package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"OpenDCA-Chain/internal/agent"
	"OpenDCA-Chain/internal/directory"
	"OpenDCA-Chain/internal/market"
	"OpenDCA-Chain/internal/notify"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	oracle := market.NewStaticOracle(map[string]uint64{"ETH": 2000_00000000})
	router := market.NewOracleRouter(oracle, "USD")
	engine := agent.NewEngine(oracle, router)
	svc := agent.NewService(agent.NewMemoryStore(), directory.NewMemoryDirectory(),
		notify.NewMemoryPublisher(), engine)
	return NewServer(":0", svc).routes()
}

func createBody() string {
	return `{
        "creator": "alice",
        "display_name": "steady buyer",
        "strategy": {
            "type": "interval_buy",
            "asset": "ETH",
            "amount_per_execution": 10000000000,
            "deposit": 100000000000,
            "timing_unit": "hours",
            "timing_value": 1
        }
}`
}

func TestCreateAgentEndpoint(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(createBody()))
	req.Header.Set("X-Caller", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d body=%s", rec.Code, http.StatusCreated, rec.Body)
	}
	var got agent.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != 1 || got.State != agent.StateActive || !got.Sponsored {
		t.Fatalf("unexpected agent: %+v", got)
	}
}

func TestCreateAgentCallerMismatch(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(createBody()))
	req.Header.Set("X-Caller", "mallory")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateAgentBadBody(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetMissingAgentMapsToNotFound(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/alice/42", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != string(agent.CodeAgentNotFound) {
		t.Fatalf("unexpected error code: %s", body.Error.Code)
	}
}

func TestExecuteGateFailureIsUnprocessable(t *testing.T) {
	handler := newTestServer(t)

	create := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(createBody()))
	create.Header.Set("X-Caller", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body)
	}

	// Executing immediately after creation is before the interval window.
	execute := httptest.NewRequest(http.MethodPost, "/api/v1/agents/alice/1/execute", nil)
	execute.Header.Set("X-Caller", "alice")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, execute)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != string(agent.CodeNotTimeForExecution) {
		t.Fatalf("unexpected error code: %s", body.Error.Code)
	}
}

func TestExecuteUnauthorizedKeeper(t *testing.T) {
	handler := newTestServer(t)

	create := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(createBody()))
	create.Header.Set("X-Caller", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	execute := httptest.NewRequest(http.MethodPost, "/api/v1/agents/alice/1/execute", nil)
	execute.Header.Set("X-Caller", "stranger")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, execute)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUserInfoAndPlatformStats(t *testing.T) {
	handler := newTestServer(t)

	create := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(createBody()))
	create.Header.Set("X-Caller", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/alice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("user info failed: %d", rec.Code)
	}
	var info agent.UserInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode user info: %v", err)
	}
	if info.LiveCount != 1 || !info.CanCreateMore {
		t.Fatalf("unexpected user info: %+v", info)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/platform/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("platform stats failed: %d", rec.Code)
	}
	var stats agent.PlatformStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalCreated != 1 || stats.TotalLive != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// Unknown users read as empty ledgers, not errors.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown user info failed: %d", rec.Code)
	}
}

func TestListAgentsEndpoint(t *testing.T) {
	handler := newTestServer(t)

	for i := 0; i < 2; i++ {
		create := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader(createBody()))
		create.Header.Set("X-Caller", "alice")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, create)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d failed: %d", i, rec.Code)
		}
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/agents/alice/1", nil)
	del.Header.Set("X-Caller", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/agents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	var agents []agent.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(agents) != 1 || agents[0].ID != 2 {
		t.Fatalf("unexpected listing: %+v", agents)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics failed: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "opendca_") {
		t.Fatalf("expected opendca metrics, got: %s", rec.Body.String())
	}
}
