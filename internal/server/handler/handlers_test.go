package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/risk"
)

type fakeScanner struct {
	active []domain.Opportunity
}

func (f *fakeScanner) Active() []domain.Opportunity { return f.active }
func (f *fakeScanner) ActiveCount() int             { return len(f.active) }

type fakeExecutor struct {
	queued int
	live   []domain.Execution
}

func (f *fakeExecutor) Queued() int              { return f.queued }
func (f *fakeExecutor) Live() []domain.Execution { return f.live }

type fakeGate struct {
	stopped bool
	reason  string
}

func (f *fakeGate) Stopped() bool { return f.stopped }
func (f *fakeGate) EmergencyStop(reason string) {
	f.stopped = true
	f.reason = reason
}

type fakeExecStore struct {
	domain.ExecutionStore
	execs map[string]domain.Execution
}

func (f *fakeExecStore) GetByID(_ context.Context, id string) (domain.Execution, error) {
	exec, ok := f.execs[id]
	if !ok {
		return domain.Execution{}, domain.ErrNotFound
	}
	return exec, nil
}

func (f *fakeExecStore) ListRecent(_ context.Context, limit int) ([]domain.Execution, error) {
	out := make([]domain.Execution, 0, len(f.execs))
	for _, e := range f.execs {
		out = append(out, e)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRiskStore struct {
	events []domain.RiskEvent
}

func (f *fakeRiskStore) Insert(_ context.Context, ev domain.RiskEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRiskStore) ListRecent(_ context.Context, limit int) ([]domain.RiskEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

type fakePortfolio struct {
	snap risk.Snapshot
}

func (f *fakePortfolio) Snapshot(time.Time) risk.Snapshot { return f.snap }

type fakeBreaker struct {
	open map[string]bool
}

func (f *fakeBreaker) Open(venue string, _ time.Time) bool { return f.open[venue] }

type fakeDirectory struct {
	ids []string
}

func (f *fakeDirectory) IDs() []string { return f.ids }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestStatusReportsPipelineCounts(t *testing.T) {
	h := NewStatusHandler("monitor", time.Now().Add(-time.Minute),
		&fakeScanner{active: []domain.Opportunity{{ID: "op-1"}, {ID: "op-2"}}},
		&fakeExecutor{queued: 3, live: []domain.Execution{{ID: "exec-1"}}},
		&fakeGate{})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["mode"] != "monitor" {
		t.Fatalf("mode = %v", body["mode"])
	}
	if body["activeOpps"] != float64(2) || body["queuedExecs"] != float64(3) || body["inflightExecs"] != float64(1) {
		t.Fatalf("counts = %v", body)
	}
	if body["emergencyStop"] != false {
		t.Fatalf("emergencyStop = %v", body["emergencyStop"])
	}
}

func TestOpportunitiesListActive(t *testing.T) {
	h := NewOpportunityHandler(&fakeScanner{active: []domain.Opportunity{{ID: "op-1"}}}, nil)

	rec := httptest.NewRecorder()
	h.ListActive(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestOpportunitiesRecentWithoutStore(t *testing.T) {
	h := NewOpportunityHandler(&fakeScanner{}, nil)

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/recent", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestExecutionGetNotFound(t *testing.T) {
	h := NewExecutionHandler(&fakeExecutor{}, &fakeExecStore{execs: map[string]domain.Execution{}})

	req := httptest.NewRequest(http.MethodGet, "/api/executions/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestExecutionGetReturnsRecord(t *testing.T) {
	store := &fakeExecStore{execs: map[string]domain.Execution{
		"exec-1": {ID: "exec-1", Strategy: "spread-main"},
	}}
	h := NewExecutionHandler(&fakeExecutor{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/executions/exec-1", nil)
	req.SetPathValue("id", "exec-1")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["id"] != "exec-1" {
		t.Fatalf("id = %v", body["id"])
	}
}

func TestRiskStateReportsExposureAndCircuits(t *testing.T) {
	pf := &fakePortfolio{snap: risk.Snapshot{
		TotalExposure: decimal.RequireFromString("250"),
		VenueExposure: map[string]decimal.Decimal{"alpha": decimal.RequireFromString("250")},
		DailyRealized: decimal.RequireFromString("-12.5"),
	}}
	h := NewRiskHandler(&fakeGate{}, pf, &fakeBreaker{open: map[string]bool{"beta": true}},
		&fakeDirectory{ids: []string{"alpha", "beta"}}, nil)

	rec := httptest.NewRecorder()
	h.State(rec, httptest.NewRequest(http.MethodGet, "/api/risk", nil))

	body := decodeBody(t, rec)
	if body["totalExposure"] != "250" {
		t.Fatalf("totalExposure = %v", body["totalExposure"])
	}
	circuits, ok := body["circuits"].(map[string]any)
	if !ok || circuits["beta"] != true || circuits["alpha"] != false {
		t.Fatalf("circuits = %v", body["circuits"])
	}
}

func TestRiskStopRequiresReason(t *testing.T) {
	gate := &fakeGate{}
	h := NewRiskHandler(gate, &fakePortfolio{}, &fakeBreaker{}, &fakeDirectory{}, nil)

	rec := httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/risk/stop", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if gate.stopped {
		t.Fatal("stop tripped without a reason")
	}
}

func TestRiskStopTripsGate(t *testing.T) {
	gate := &fakeGate{}
	h := NewRiskHandler(gate, &fakePortfolio{}, &fakeBreaker{}, &fakeDirectory{}, nil)

	rec := httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/risk/stop",
		strings.NewReader(`{"reason":"operator halt"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !gate.stopped || gate.reason != "operator halt" {
		t.Fatalf("gate = %+v", gate)
	}
}

func TestRiskEventsListsRecent(t *testing.T) {
	store := &fakeRiskStore{events: []domain.RiskEvent{
		{ID: "re-1", Limit: "dailyLossHalt", Reason: "daily loss limit"},
	}}
	h := NewRiskHandler(&fakeGate{}, &fakePortfolio{}, &fakeBreaker{}, &fakeDirectory{}, store)

	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/api/risk/events?limit=10", nil))

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}
}

type fakeVenueSet struct {
	venues []domain.Venue
	health map[string]domain.VenueHealth
}

func (f *fakeVenueSet) Venues() []domain.Venue                   { return f.venues }
func (f *fakeVenueSet) HealthAll() map[string]domain.VenueHealth { return f.health }

func TestVenueListIncludesHealth(t *testing.T) {
	set := &fakeVenueSet{
		venues: []domain.Venue{{ID: "alpha", Kind: domain.VenueKindSpot}},
		health: map[string]domain.VenueHealth{"alpha": domain.VenueHealthDegraded},
	}
	h := NewVenueHandler(set, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/venues", nil))

	body := decodeBody(t, rec)
	venues, ok := body["venues"].([]any)
	if !ok || len(venues) != 1 {
		t.Fatalf("venues = %v", body["venues"])
	}
	first := venues[0].(map[string]any)
	if first["id"] != "alpha" || first["health"] != "degraded" {
		t.Fatalf("entry = %v", first)
	}
}

func TestParseLimitCapsAndDefaults(t *testing.T) {
	if got := parseLimit(httptest.NewRequest(http.MethodGet, "/x", nil)); got != 50 {
		t.Fatalf("default = %d", got)
	}
	if got := parseLimit(httptest.NewRequest(http.MethodGet, "/x?limit=10000", nil)); got != 500 {
		t.Fatalf("cap = %d", got)
	}
	if got := parseLimit(httptest.NewRequest(http.MethodGet, "/x?limit=-3", nil)); got != 50 {
		t.Fatalf("negative = %d", got)
	}
}
