package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
)

func TestSnapshot_UsesTokenSubject(t *testing.T) {
	svc := &fakeService{snapshot: &domain.FinancialSnapshot{NetWorth: 1950.05}}
	router := newRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/v1/snapshot", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotUserID != "user-1" {
		t.Errorf("expected user-1, got %s", svc.gotUserID)
	}
	var body struct {
		Snapshot domain.FinancialSnapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Snapshot.NetWorth != 1950.05 {
		t.Errorf("unexpected snapshot %+v", body.Snapshot)
	}
}

func TestCreateInsight_Created(t *testing.T) {
	svc := &fakeService{insight: &domain.Insight{ID: "ins-1", Summary: "ok", Actions: []domain.Action{}}}
	router := newRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodPost, "/v1/insights", ""))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body struct {
		Insight domain.Insight `json:"insight"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Insight.ID != "ins-1" {
		t.Errorf("unexpected insight %+v", body.Insight)
	}
}

func TestCreateInsight_RateLimited(t *testing.T) {
	svc := &fakeService{err: &domain.ErrRateLimited{RetryAfter: 40*time.Minute + 500*time.Millisecond}}
	router := newRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodPost, "/v1/insights", ""))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2401" {
		t.Errorf("expected Retry-After 2401, got %q", got)
	}
}

func TestListInsights_Limit(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{"default", "", http.StatusOK, 10},
		{"explicit", "?limit=3", http.StatusOK, 3},
		{"not a number", "?limit=abc", http.StatusBadRequest, 0},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{insights: []domain.Insight{}}
			router := newRouter(svc, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authed(t, http.MethodGet, "/v1/insights"+tc.query, ""))

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			if svc.gotLimit != tc.wantLimit {
				t.Errorf("expected limit %d, got %d", tc.wantLimit, svc.gotLimit)
			}
		})
	}
}

func TestGetInsight_NotFound(t *testing.T) {
	svc := &fakeService{err: &domain.ErrNotFound{Resource: "insight", ID: "nope"}}
	router := newRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/v1/insights/nope", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListActions_StatusNormalized(t *testing.T) {
	svc := &fakeService{actions: &domain.ActionList{Actions: []domain.Action{}, Counts: map[string]int{"PENDING": 0}}}
	router := newRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodGet, "/v1/actions?status=pending&limit=5", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotStatus != "PENDING" || svc.gotLimit != 5 {
		t.Errorf("unexpected args %s/%d", svc.gotStatus, svc.gotLimit)
	}
}

func TestUpdateAction(t *testing.T) {
	svc := &fakeService{action: &domain.Action{ID: "a1", Status: domain.ActionCompleted}}
	router := newRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodPatch, "/v1/actions/a1", `{"status":"COMPLETED"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotStatus != domain.ActionCompleted {
		t.Errorf("expected COMPLETED, got %s", svc.gotStatus)
	}
}

func TestUpdateAction_BadBody(t *testing.T) {
	router := newRouter(&fakeService{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(t, http.MethodPatch, "/v1/actions/a1", `{"status":`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &domain.ErrValidation{Field: "status", Message: "bad"}, http.StatusBadRequest},
		{"circuit open", &domain.ErrCircuitOpen{Service: "supabase"}, http.StatusServiceUnavailable},
		{"external", &domain.ErrExternalService{Service: "supabase/accounts", Err: http.ErrHandlerTimeout}, http.StatusBadGateway},
		{"timeout", &domain.ErrTimeout{Operation: "snapshot"}, http.StatusGatewayTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(&fakeService{err: tc.err}, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authed(t, http.MethodGet, "/v1/snapshot", ""))

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
