//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/identity"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/go-chi/chi/v5"
)

type fakeBackend struct {
	mu          sync.Mutex
	messages    []domain.Message
	transcript  []domain.Message
	err         error
	sendCalls   int
	lastQuery   remote.RecordQuery
	actionGate  chan struct{}
	actionCalls int
	leadsArgs   [2]any
}

func (f *fakeBackend) GetFlowStatus(context.Context) (*domain.StatusSnapshot, error) {
	return &domain.StatusSnapshot{RecentActivity: domain.RecentActivity{LeadsToday: 1}}, f.err
}

func (f *fakeBackend) GetMessages(context.Context, string, int) ([]domain.Message, error) {
	return f.messages, f.err
}

func (f *fakeBackend) GetConversation(context.Context, string, string) ([]domain.Message, error) {
	return f.transcript, f.err
}

func (f *fakeBackend) SendMessage(_ context.Context, _, correspondentID, _ string) (*remote.SendReceipt, error) {
	f.mu.Lock()
	f.sendCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &remote.SendReceipt{MessageID: "mid-1", RecipientID: correspondentID}, nil
}

func (f *fakeBackend) GetDashboardData(context.Context, string, int) (*domain.DashboardData, error) {
	return &domain.DashboardData{Stats: domain.DashboardStats{TotalLeads: 4}}, f.err
}

func (f *fakeBackend) ListAccounts(context.Context) ([]domain.Account, error) {
	return []domain.Account{{Name: "acc", AccountName: "Shop"}}, f.err
}

func (f *fakeBackend) SyncLeads(context.Context, string) (*remote.ActionOutcome, error) {
	f.mu.Lock()
	f.actionCalls++
	gate := f.actionGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return &remote.ActionOutcome{Message: "synced", Processed: 2}, f.err
}

func (f *fakeBackend) PullInsights(context.Context) (*remote.ActionOutcome, error) {
	return &remote.ActionOutcome{Message: "pulled"}, f.err
}

func (f *fakeBackend) TestConnection(context.Context) (*remote.ActionOutcome, error) {
	return &remote.ActionOutcome{Message: "ok"}, f.err
}

func (f *fakeBackend) RefreshToken(context.Context) (*remote.ActionOutcome, error) {
	return &remote.ActionOutcome{Message: "Token refreshed successfully"}, f.err
}

func (f *fakeBackend) GetOverview(context.Context) (*domain.Overview, error) {
	return &domain.Overview{TotalMessages: 10, TodayMessages: 2, TotalLeads: 5, UnmappedLeads: 1}, f.err
}

func (f *fakeBackend) UnmappedLeads(_ context.Context, account string, limit int) ([]remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leadsArgs = [2]any{account, limit}
	return []remote.Record{{"name": "LEAD-1", "synced": 0}}, f.err
}

func (f *fakeBackend) ListRecords(_ context.Context, q remote.RecordQuery) ([]remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return []remote.Record{{"name": "LOG-1"}}, f.err
}

func (f *fakeBackend) GetRecord(_ context.Context, doctype, name string) (remote.Record, error) {
	return remote.Record{"doctype": doctype, "name": name}, f.err
}

type fakeRepo struct {
	mu      sync.Mutex
	actions []*domain.ActionRecord
	pingErr error
}

func (f *fakeRepo) GetUser(context.Context, string) (*domain.User, error)      { return nil, nil }
func (f *fakeRepo) UpsertUser(context.Context, *domain.User) error             { return nil }
func (f *fakeRepo) UpdateLastSeen(context.Context, string, time.Time) error    { return nil }
func (f *fakeRepo) PruneActions(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                 { return f.pingErr }
func (f *fakeRepo) Close() error                                               { return nil }

func (f *fakeRepo) RecordAction(_ context.Context, a *domain.ActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
	return nil
}

func (f *fakeRepo) ListActions(_ context.Context, userID string, limit int) ([]*domain.ActionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ActionRecord
	for i := len(f.actions) - 1; i >= 0 && len(out) < limit; i-- {
		if f.actions[i].UserID == userID {
			out = append(out, f.actions[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) recorded() []*domain.ActionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.ActionRecord(nil), f.actions...)
}

func newTestRouter(backend *fakeBackend, repo *fakeRepo) http.Handler {
	base := NewHandler(backend, repo, nil, nil, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), "op_test", "tab")))
		})
	})
	NewHealthHandler(repo, time.Second, func() int { return 2 }).RegisterHealth(r)
	r.Route("/api", func(r chi.Router) {
		NewInboxHandler(base, 50).RegisterRoutes(r)
		NewActionsHandler(base).RegisterRoutes(r)
		NewRecordsHandler(base).RegisterRoutes(r)
		NewDashboardHandler(base).RegisterRoutes(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &domain.ValidationError{Problems: []string{"x"}}, http.StatusUnprocessableEntity},
		{"wrapped validation", fmt.Errorf("send: %w", &domain.ValidationError{}), http.StatusUnprocessableEntity},
		{"in flight", fmt.Errorf("%w: send:a:b", domain.ErrInFlight), http.StatusConflict},
		{"remote", fmt.Errorf("%w: boom", domain.ErrRemoteCall), http.StatusBadGateway},
		{"direction", fmt.Errorf("load: %w", domain.ErrUnknownDirection), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)
			if w.Code != tt.want {
				t.Errorf("got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestListConversations(t *testing.T) {
	backend := &fakeBackend{messages: []domain.Message{
		{Direction: domain.DirectionIncoming, SenderID: "A", SenderName: "Ann", Content: "hi"},
		{Direction: domain.DirectionOutgoing, RecipientID: "B", Content: "yo"},
		{Direction: domain.DirectionIncoming, SenderID: "A", Content: "older"},
	}}
	h := newTestRouter(backend, &fakeRepo{})

	w := do(t, h, http.MethodGet, "/api/conversations?account=acc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	convs := decode(t, w)["conversations"].([]any)
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %v", convs)
	}
	first := convs[0].(map[string]any)
	if first["correspondent_id"] != "A" || first["last_message_preview"] != "hi" {
		t.Errorf("unexpected first summary %v", first)
	}
}

func TestListConversationsEmptyAndBadLimit(t *testing.T) {
	h := newTestRouter(&fakeBackend{}, &fakeRepo{})

	w := do(t, h, http.MethodGet, "/api/conversations", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"conversations":[]`) {
		t.Errorf("expected empty list, got %d %s", w.Code, w.Body)
	}

	if w := do(t, h, http.MethodGet, "/api/conversations?limit=-1", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad limit, got %d", w.Code)
	}
}

func TestListConversationsUnknownDirection(t *testing.T) {
	backend := &fakeBackend{messages: []domain.Message{{Direction: "sideways", SenderID: "A"}}}
	h := newTestRouter(backend, &fakeRepo{})

	if w := do(t, h, http.MethodGet, "/api/conversations", ""); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	backend := &fakeBackend{}
	repo := &fakeRepo{}
	h := newTestRouter(backend, repo)

	w := do(t, h, http.MethodPost, "/api/conversations/A/messages", `{"text":"  "}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	problems := decode(t, w)["problems"].([]any)
	if len(problems) != 2 {
		t.Errorf("expected blank text and missing account, got %v", problems)
	}
	if backend.sendCalls != 0 {
		t.Errorf("expected no remote call, got %d", backend.sendCalls)
	}
	if len(repo.recorded()) != 0 {
		t.Error("validation failures must not be audited")
	}
}

func TestSendMessageSuccess(t *testing.T) {
	backend := &fakeBackend{transcript: []domain.Message{
		{Direction: domain.DirectionOutgoing, RecipientID: "A", Content: "hello"},
	}}
	repo := &fakeRepo{}
	h := newTestRouter(backend, repo)

	w := do(t, h, http.MethodPost, "/api/conversations/A/messages", `{"account":"acc","text":"hello"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
	got := decode(t, w)
	if got["message_id"] != "mid-1" || len(got["messages"].([]any)) != 1 {
		t.Errorf("unexpected body %v", got)
	}

	recs := repo.recorded()
	if len(recs) != 1 || recs[0].Kind != domain.ActionSendMessage || !recs[0].OK || recs[0].Target != "A" || recs[0].UserID != "op_test" {
		t.Errorf("unexpected audit trail %+v", recs)
	}
}

func TestSendMessageRemoteFailure(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: page token expired", domain.ErrRemoteCall)}
	repo := &fakeRepo{}
	h := newTestRouter(backend, repo)

	w := do(t, h, http.MethodPost, "/api/conversations/A/messages", `{"account":"acc","text":"hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if !strings.Contains(decode(t, w)["error"].(string), "page token expired") {
		t.Error("expected backend reason in error")
	}
	if recs := repo.recorded(); len(recs) != 1 || recs[0].OK {
		t.Errorf("expected failed action to be audited, got %+v", recs)
	}
}

func TestSyncLeadsRejectsConcurrentRun(t *testing.T) {
	backend := &fakeBackend{actionGate: make(chan struct{})}
	repo := &fakeRepo{}
	h := newTestRouter(backend, repo)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(t, h, http.MethodPost, "/api/actions/sync-leads", `{"account":"acc"}`)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		started := backend.actionCalls > 0
		backend.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := do(t, h, http.MethodPost, "/api/actions/sync-leads", `{"account":"acc"}`); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate run, got %d", w.Code)
	}

	close(backend.actionGate)
	if w := <-first; w.Code != http.StatusOK {
		t.Errorf("first run: expected 200, got %d", w.Code)
	}

	w := do(t, h, http.MethodGet, "/api/actions", "")
	actions := decode(t, w)["actions"].([]any)
	if len(actions) != 2 {
		t.Fatalf("expected both attempts audited, got %v", actions)
	}
	if newest := actions[0].(map[string]any); newest["ok"] != true {
		t.Errorf("expected the successful run to be newest, got %v", newest)
	}
}

func TestSyncLeadsRequiresAccount(t *testing.T) {
	backend := &fakeBackend{}
	h := newTestRouter(backend, &fakeRepo{})

	if w := do(t, h, http.MethodPost, "/api/actions/sync-leads", `{}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
	if backend.actionCalls != 0 {
		t.Error("backend called without an account")
	}
}

func TestSimpleActions(t *testing.T) {
	h := newTestRouter(&fakeBackend{}, &fakeRepo{})

	for _, path := range []string{"/api/actions/pull-insights", "/api/actions/test-connection", "/api/actions/refresh-token"} {
		if w := do(t, h, http.MethodPost, path, ""); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestRefreshTokenIsAudited(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: Failed to refresh token", domain.ErrRemoteCall)}
	repo := &fakeRepo{}
	h := newTestRouter(backend, repo)

	if w := do(t, h, http.MethodPost, "/api/actions/refresh-token", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	recs := repo.recorded()
	if len(recs) != 1 || recs[0].Kind != domain.ActionRefreshToken || recs[0].OK {
		t.Errorf("expected a failed refresh-token record, got %+v", recs)
	}
}

func TestOverviewAndUnmappedLeads(t *testing.T) {
	backend := &fakeBackend{}
	h := newTestRouter(backend, &fakeRepo{})

	w := do(t, h, http.MethodGet, "/api/overview", "")
	if w.Code != http.StatusOK {
		t.Fatalf("overview: expected 200, got %d", w.Code)
	}
	overview := decode(t, w)
	if overview["today_messages"] != float64(2) || overview["unmapped_leads"] != float64(1) {
		t.Errorf("unexpected overview %v", overview)
	}

	w = do(t, h, http.MethodGet, "/api/leads/unmapped?account=acc&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unmapped leads: expected 200, got %d", w.Code)
	}
	if leads := decode(t, w)["leads"].([]any); len(leads) != 1 {
		t.Errorf("unexpected leads %v", leads)
	}
	if backend.leadsArgs != [2]any{"acc", 5} {
		t.Errorf("unexpected backend args %v", backend.leadsArgs)
	}

	if w := do(t, h, http.MethodGet, "/api/leads/unmapped?limit=x", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a bad limit, got %d", w.Code)
	}
}

func TestRecords(t *testing.T) {
	backend := &fakeBackend{}
	h := newTestRouter(backend, &fakeRepo{})

	query := url.Values{
		"fields":  {"name, status"},
		"limit":   {"5"},
		"filters": {`{"status":"Failed"}`},
	}
	w := do(t, h, http.MethodGet, "/api/records/lead-logs?"+query.Encode(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	q := backend.lastQuery
	if q.Doctype != "Facebook Lead Log" || q.Limit != 5 || len(q.Fields) != 2 || q.Fields[1] != "status" || q.Filters["status"] != "Failed" {
		t.Errorf("unexpected query %+v", q)
	}

	if w := do(t, h, http.MethodGet, "/api/records/users", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown type, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/records/lead-logs?filters=nope", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad filters, got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/records/settings/Facebook%20Settings", "")
	if w.Code != http.StatusOK || decode(t, w)["doctype"] != "Facebook Settings" {
		t.Errorf("unexpected record response %d", w.Code)
	}
}

func TestDashboard(t *testing.T) {
	h := newTestRouter(&fakeBackend{}, &fakeRepo{})

	w := do(t, h, http.MethodGet, "/api/dashboard?days=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decode(t, w)["stats"].(map[string]any)
	if stats["total_leads"] != float64(4) {
		t.Errorf("unexpected stats %v", stats)
	}

	if w := do(t, h, http.MethodGet, "/api/flow-status", ""); w.Code != http.StatusOK {
		t.Errorf("flow status: expected 200, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	repo := &fakeRepo{}
	h := newTestRouter(&fakeBackend{}, repo)

	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || decode(t, w)["mounted_views"] != float64(2) {
		t.Errorf("unexpected healthy response %d", w.Code)
	}

	repo.pingErr = errors.New("locked")
	w = do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if got := decode(t, w)["status"]; got != "degraded" {
		t.Errorf("expected degraded, got %v", got)
	}
}
