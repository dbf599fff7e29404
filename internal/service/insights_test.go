package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/cache"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/observability"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/service"

	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockReader struct {
	records domain.FinancialRecords
	failOn  string
	since   time.Time
	mu      sync.Mutex
}

func (m *mockReader) fail(what string) error {
	if m.failOn == what {
		return errors.New(what + " table unavailable")
	}
	return nil
}

func (m *mockReader) ListAccounts(_ context.Context, _ string) ([]domain.Account, error) {
	return m.records.Accounts, m.fail("accounts")
}

func (m *mockReader) ListTransactionsSince(_ context.Context, _ string, since time.Time) ([]domain.Transaction, error) {
	m.mu.Lock()
	m.since = since
	m.mu.Unlock()
	return m.records.Transactions, m.fail("transactions")
}

func (m *mockReader) ListOpenDebts(_ context.Context, _ string) ([]domain.Debt, error) {
	return m.records.Debts, m.fail("debts")
}

func (m *mockReader) ListActiveBills(_ context.Context, _ string) ([]domain.Bill, error) {
	return m.records.Bills, m.fail("bills")
}

func (m *mockReader) ListActiveGoals(_ context.Context, _ string) ([]domain.Goal, error) {
	return m.records.Goals, m.fail("goals")
}

type mockStore struct {
	mu       sync.Mutex
	last     *time.Time
	lastErr  error
	created  []*domain.Insight
	saveErr  error
	actions  map[string]*domain.Action
	counts   map[string]int
	lookups  int
	listArgs []string
}

func (m *mockStore) LastInsightAt(_ context.Context, _ string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return m.last, m.lastErr
}

func (m *mockStore) CreateInsight(_ context.Context, in *domain.Insight) (*domain.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	out := *in
	out.ID = fmt.Sprintf("ins-%d", len(m.created)+1)
	out.CreatedAt = fixedNow
	out.Actions = make([]domain.Action, len(in.Actions))
	for i, a := range in.Actions {
		a.ID = fmt.Sprintf("%s-act-%d", out.ID, i+1)
		a.InsightID = out.ID
		a.CreatedAt = fixedNow
		out.Actions[i] = a
	}
	m.created = append(m.created, &out)
	return &out, nil
}

func (m *mockStore) ListInsights(_ context.Context, _ string, limit int) ([]domain.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listArgs = append(m.listArgs, fmt.Sprintf("insights:%d", limit))
	return nil, nil
}

func (m *mockStore) GetInsight(_ context.Context, _, insightID string) (*domain.Insight, error) {
	for _, in := range m.created {
		if in.ID == insightID {
			return in, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "insight", ID: insightID}
}

func (m *mockStore) ListActions(_ context.Context, _, status string, limit int) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listArgs = append(m.listArgs, fmt.Sprintf("actions:%s:%d", status, limit))
	var out []domain.Action
	for _, a := range m.actions {
		if status == "" || a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStore) CountActionsByStatus(_ context.Context, _ string) (map[string]int, error) {
	return m.counts, nil
}

func (m *mockStore) GetAction(_ context.Context, _, actionID string) (*domain.Action, error) {
	a, ok := m.actions[actionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "action", ID: actionID}
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) UpdateAction(_ context.Context, a *domain.Action) (*domain.Action, error) {
	cp := *a
	m.actions[a.ID] = &cp
	return &cp, nil
}

func newService(reader *mockReader, store *mockStore) *service.InsightService {
	lastRun := cache.New[time.Time](time.Hour)
	return service.NewInsightService(
		reader,
		store,
		lastRun,
		observability.NewMetrics(),
		zap.NewNop(),
		time.Hour,
	).WithClock(func() time.Time { return fixedNow })
}

func healthyRecords() domain.FinancialRecords {
	due := fixedNow.Add(3 * 24 * time.Hour)
	return domain.FinancialRecords{
		Accounts: []domain.Account{
			{ID: "a1", Name: "Checking", Type: domain.AccountChecking, CurrentBalance: 3240.50, IncludeInNetWorth: true},
			{ID: "a2", Name: "Visa", Type: domain.AccountCreditCard, CurrentBalance: -1290.45, IncludeInNetWorth: true},
		},
		Transactions: []domain.Transaction{
			{ID: "t1", Amount: 5200},
			{ID: "t2", Amount: -3800},
		},
		Debts: []domain.Debt{
			{ID: "d1", Name: "Visa", CurrentBalance: 1290.45, MinimumPayment: 35, InterestRate: 0.1999},
		},
		Bills: []domain.Bill{
			{ID: "b1", Name: "Phone", Amount: 65, NextDueDate: &due, IsActive: true},
		},
		Goals: []domain.Goal{
			{ID: "g1", Name: "Rainy day", Type: domain.GoalEmergencyFund, CurrentAmount: 800, TargetAmount: 1000, Status: domain.GoalStatusActive},
		},
	}
}

// --- ComputeSnapshot ---

func TestComputeSnapshot_Success(t *testing.T) {
	reader := &mockReader{records: healthyRecords()}
	svc := newService(reader, &mockStore{})

	snap, err := svc.ComputeSnapshot(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if snap.NetWorth < 1950 || snap.NetWorth > 1950.1 {
		t.Errorf("expected net worth ~1950.05, got %f", snap.NetWorth)
	}
	if len(snap.UpcomingBills) != 1 || snap.UpcomingBills[0].DueIn != 3 {
		t.Errorf("unexpected bills %+v", snap.UpcomingBills)
	}
	if want := fixedNow.Add(-30 * 24 * time.Hour); !reader.since.Equal(want) {
		t.Errorf("expected transactions since %v, got %v", want, reader.since)
	}
}

func TestComputeSnapshot_AnyReadFailureFails(t *testing.T) {
	for _, what := range []string{"accounts", "transactions", "debts", "bills", "goals"} {
		t.Run(what, func(t *testing.T) {
			reader := &mockReader{records: healthyRecords(), failOn: what}
			svc := newService(reader, &mockStore{})

			snap, err := svc.ComputeSnapshot(context.Background(), "user-1")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if snap != nil {
				t.Error("expected no partial snapshot")
			}
		})
	}
}

func TestComputeSnapshot_PropagatesTypedErrors(t *testing.T) {
	reader := &failingReader{err: &domain.ErrCircuitOpen{Service: "supabase"}}
	svc := service.NewInsightService(reader, &mockStore{}, cache.New[time.Time](time.Hour),
		observability.NewMetrics(), zap.NewNop(), time.Hour)

	_, err := svc.ComputeSnapshot(context.Background(), "user-1")

	var open *domain.ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen in chain, got %v", err)
	}
}

func TestComputeSnapshot_CancelledContext(t *testing.T) {
	svc := newService(&mockReader{}, &mockStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.ComputeSnapshot(ctx, "user-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingReader struct{ err error }

func (f *failingReader) ListAccounts(context.Context, string) ([]domain.Account, error) {
	return nil, f.err
}
func (f *failingReader) ListTransactionsSince(context.Context, string, time.Time) ([]domain.Transaction, error) {
	return nil, nil
}
func (f *failingReader) ListOpenDebts(context.Context, string) ([]domain.Debt, error) {
	return nil, nil
}
func (f *failingReader) ListActiveBills(context.Context, string) ([]domain.Bill, error) {
	return nil, nil
}
func (f *failingReader) ListActiveGoals(context.Context, string) ([]domain.Goal, error) {
	return nil, nil
}

// --- GenerateAndSave ---

func TestGenerateAndSave_PersistsInsightAndActions(t *testing.T) {
	store := &mockStore{}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	insight, err := svc.GenerateAndSave(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if insight.ID != "ins-1" {
		t.Errorf("expected stored id, got %s", insight.ID)
	}
	if len(insight.WeekPlan) != 7 {
		t.Errorf("expected 7 week plan items, got %d", len(insight.WeekPlan))
	}
	if insight.Confidence != 0.90 {
		t.Errorf("expected confidence 0.90, got %v", insight.Confidence)
	}
	if len(insight.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(insight.Actions), insight.Actions)
	}
	if insight.Actions[0].Priority != 1 || insight.Actions[1].Priority != 2 {
		t.Errorf("expected priorities 1,2 got %d,%d", insight.Actions[0].Priority, insight.Actions[1].Priority)
	}
	for _, a := range insight.Actions {
		if a.Status != domain.ActionPending {
			t.Errorf("expected PENDING, got %s", a.Status)
		}
		if a.UserID != "user-1" || a.InsightID != "ins-1" {
			t.Errorf("unexpected ownership %s/%s", a.UserID, a.InsightID)
		}
	}

	var snap domain.FinancialSnapshot
	if err := json.Unmarshal(insight.DataSnapshot, &snap); err != nil {
		t.Fatalf("stored snapshot is not valid json: %v", err)
	}
	if len(snap.Accounts) != 2 {
		t.Errorf("expected stored snapshot with 2 accounts, got %d", len(snap.Accounts))
	}
}

func TestGenerateAndSave_RateLimitedByStoredInsight(t *testing.T) {
	last := fixedNow.Add(-20 * time.Minute)
	store := &mockStore{last: &last}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	_, err := svc.GenerateAndSave(context.Background(), "user-1")

	var rl *domain.ErrRateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if rl.RetryAfter != 40*time.Minute {
		t.Errorf("expected retry after 40m, got %s", rl.RetryAfter)
	}
	if len(store.created) != 0 {
		t.Error("expected nothing to be saved")
	}
}

func TestGenerateAndSave_AllowedAfterCooldown(t *testing.T) {
	last := fixedNow.Add(-61 * time.Minute)
	store := &mockStore{last: &last}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected generation after cooldown, got %v", err)
	}
}

func TestGenerateAndSave_SecondCallUsesCache(t *testing.T) {
	store := &mockStore{}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := svc.GenerateAndSave(context.Background(), "user-1")

	var rl *domain.ErrRateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimited on second call, got %v", err)
	}
	if rl.RetryAfter != time.Hour {
		t.Errorf("expected full cooldown, got %s", rl.RetryAfter)
	}
	if store.lookups != 1 {
		t.Errorf("expected one store lookup, got %d", store.lookups)
	}
}

func TestGenerateAndSave_UsersAreIndependent(t *testing.T) {
	store := &mockStore{}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err != nil {
		t.Fatalf("user-1: %v", err)
	}
	if _, err := svc.GenerateAndSave(context.Background(), "user-2"); err != nil {
		t.Fatalf("user-2: %v", err)
	}
}

func TestGenerateAndSave_SnapshotFailureSavesNothing(t *testing.T) {
	store := &mockStore{}
	svc := newService(&mockReader{records: healthyRecords(), failOn: "goals"}, store)

	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(store.created) != 0 {
		t.Error("expected nothing to be saved")
	}
}

func TestGenerateAndSave_SaveFailureDoesNotStartCooldown(t *testing.T) {
	store := &mockStore{saveErr: errors.New("insert failed")}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}

	store.saveErr = nil
	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestGenerateAndSave_LookupFailure(t *testing.T) {
	store := &mockStore{lastErr: errors.New("timeout")}
	svc := newService(&mockReader{records: healthyRecords()}, store)

	if _, err := svc.GenerateAndSave(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// --- Listing ---

func TestListInsights_ClampsLimit(t *testing.T) {
	store := &mockStore{}
	svc := newService(&mockReader{}, store)

	for _, limit := range []int{0, -3, 5, 500} {
		insights, err := svc.ListInsights(context.Background(), "user-1", limit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if insights == nil {
			t.Error("expected empty slice, got nil")
		}
	}

	want := []string{"insights:10", "insights:10", "insights:5", "insights:50"}
	for i, w := range want {
		if store.listArgs[i] != w {
			t.Errorf("call %d: expected %s, got %s", i, w, store.listArgs[i])
		}
	}
}

func TestGetInsight_NotFound(t *testing.T) {
	svc := newService(&mockReader{}, &mockStore{})

	_, err := svc.GetInsight(context.Background(), "user-1", "missing")

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActions_FillsCounts(t *testing.T) {
	store := &mockStore{
		actions: map[string]*domain.Action{
			"a1": {ID: "a1", Status: domain.ActionPending, Priority: 1},
			"a2": {ID: "a2", Status: domain.ActionCompleted, Priority: 2},
		},
		counts: map[string]int{domain.ActionPending: 1, domain.ActionCompleted: 1},
	}
	svc := newService(&mockReader{}, store)

	list, err := svc.ListActions(context.Background(), "user-1", domain.ActionPending, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Actions) != 1 || list.Actions[0].ID != "a1" {
		t.Errorf("unexpected actions %+v", list.Actions)
	}
	if len(list.Counts) != 5 {
		t.Errorf("expected counts for all 5 statuses, got %v", list.Counts)
	}
	if list.Counts[domain.ActionCompleted] != 1 || list.Counts[domain.ActionDismissed] != 0 {
		t.Errorf("unexpected counts %v", list.Counts)
	}
}

func TestListActions_RejectsUnknownStatus(t *testing.T) {
	svc := newService(&mockReader{}, &mockStore{})

	_, err := svc.ListActions(context.Background(), "user-1", "DONE", 10)

	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// --- UpdateActionStatus ---

func TestUpdateActionStatus_Completed(t *testing.T) {
	store := &mockStore{actions: map[string]*domain.Action{
		"a1": {ID: "a1", Status: domain.ActionPending},
	}}
	svc := newService(&mockReader{}, store)

	a, err := svc.UpdateActionStatus(context.Background(), "user-1", "a1", domain.ActionCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Status != domain.ActionCompleted {
		t.Errorf("expected COMPLETED, got %s", a.Status)
	}
	if a.CompletedAt == nil || !a.CompletedAt.Equal(fixedNow) {
		t.Errorf("expected completedAt %v, got %v", fixedNow, a.CompletedAt)
	}
	if a.DismissedAt != nil {
		t.Error("expected dismissedAt to stay nil")
	}
}

func TestUpdateActionStatus_DismissedKeepsFirstTimestamp(t *testing.T) {
	earlier := fixedNow.Add(-24 * time.Hour)
	store := &mockStore{actions: map[string]*domain.Action{
		"a1": {ID: "a1", Status: domain.ActionDismissed, DismissedAt: &earlier},
	}}
	svc := newService(&mockReader{}, store)

	a, err := svc.UpdateActionStatus(context.Background(), "user-1", "a1", domain.ActionDismissed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.DismissedAt.Equal(earlier) {
		t.Errorf("expected dismissedAt to stay %v, got %v", earlier, a.DismissedAt)
	}
}

func TestUpdateActionStatus_InvalidStatus(t *testing.T) {
	svc := newService(&mockReader{}, &mockStore{actions: map[string]*domain.Action{}})

	_, err := svc.UpdateActionStatus(context.Background(), "user-1", "a1", "FINISHED")

	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUpdateActionStatus_NotFound(t *testing.T) {
	svc := newService(&mockReader{}, &mockStore{actions: map[string]*domain.Action{}})

	_, err := svc.UpdateActionStatus(context.Background(), "user-1", "missing", domain.ActionInProgress)

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
