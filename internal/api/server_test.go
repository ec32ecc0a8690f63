package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/clock/system"
	"github.com/JakeFAU/award-digest/internal/dispatcher"
	queueMemory "github.com/JakeFAU/award-digest/internal/queue/memory"
	"github.com/JakeFAU/award-digest/internal/registry"
	"github.com/JakeFAU/award-digest/internal/store"
	"github.com/JakeFAU/award-digest/internal/storage/memory"
)

var testNow = time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	queue  *queueMemory.Queue
	runs   *memory.RunStore
	awards *memory.AwardStore
	lookup *fakeRegistry
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	q := queueMemory.NewQueue(4)
	env := &testEnv{
		queue:  q,
		runs:   memory.NewRunStore(),
		awards: memory.NewAwardStore(),
		lookup: &fakeRegistry{},
	}
	dispatch := dispatcher.New(q, nil, &seqIDs{}, system.Fixed(testNow))
	if opts.LookbackDays == 0 {
		opts.LookbackDays = 1
	}
	env.server = NewServer(Deps{
		Submitter: dispatch,
		Runs:      env.runs,
		Awards:    env.awards,
		Registry:  env.lookup,
		Clock:     system.Fixed(testNow),
	}, opts, zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func seedAwards(t *testing.T, s *memory.AwardStore) {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Upsert(context.Background(), []award.Record{
		{NoticeID: "1", CompanyName: "Alpha", CompanyID: "RO111", Value: 500000, AwardDate: day(20), CategoryLabel: "Road construction"},
		{NoticeID: "2", CompanyName: "Beta", CompanyID: "222", Value: 2000000, AwardDate: day(25), CategoryLabel: "Building construction"},
		{NoticeID: "3", CompanyName: "Alpha", CompanyID: "111", Value: 90000, AwardDate: day(26), CategoryLabel: "Road construction"},
		{NoticeID: "4", CompanyName: "Gamma", CompanyID: "333", Value: 750000, AwardDate: time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), CategoryLabel: "Road construction"},
	}))
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	notReady := NewServer(Deps{Ready: func(context.Context) error { return errors.New("db down") }}, Options{}, nil)
	rec = httptest.NewRecorder()
	notReady.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.do(t, http.MethodGet, "/healthz", nil)
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_SubmitCycleDefaultWindow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{LookbackDays: 2, MinValue: 1000})
	rec := env.do(t, http.MethodPost, "/v1/cycles", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "id-1")

	req, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "id-1", req.ID)
	require.Equal(t, "api", req.Source)
	require.Equal(t, "2024-01-29", req.Window.StartDate())
	require.Equal(t, "2024-01-31", req.Window.EndDate())
	require.Equal(t, 1000.0, req.Window.MinValue)
}

func TestServer_SubmitCyclePinnedWindow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodPost, "/v1/cycles", []byte(`{"start":"2024-01-01","end":"2024-01-15","min_value":5}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	req, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", req.Window.StartDate())
	require.Equal(t, "2024-01-15", req.Window.EndDate())
	require.Equal(t, 5.0, req.Window.MinValue)
}

func TestServer_SubmitCycleRejectsBadInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: "{invalid"},
		{name: "half window", body: `{"start":"2024-01-01"}`},
		{name: "reversed", body: `{"start":"2024-02-01","end":"2024-01-01"}`},
		{name: "bad date", body: `{"start":"yesterday","end":"2024-01-01"}`},
		{name: "negative value", body: `{"min_value":-1}`},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodPost, "/v1/cycles", []byte(tt.body))
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
	}
	require.Zero(t, env.queue.Len())
}

func TestServer_APIKeyProtectsV1(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{APIKey: "secret"})
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/cycles", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/cycles?api_key=secret", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestServer_CycleHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	id := uuid.New()
	ctx := context.Background()
	require.NoError(t, env.runs.StartRun(ctx, id, testNow, testNow.AddDate(0, 0, -1), testNow))
	require.NoError(t, env.runs.UpsertEndpointStats(ctx, store.EndpointStats{
		RunID: id, Endpoint: "https://portal.example/filter", Attempts: 4, Outcome: "failed",
	}))

	rec := env.do(t, http.MethodGet, "/v1/cycles?status=running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Cycles []store.Run `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Cycles, 1)
	require.Equal(t, id, list.Cycles[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/cycles/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one struct {
		Cycle     store.Run             `json:"cycle"`
		Endpoints []store.EndpointStats `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Equal(t, store.RunRunning, one.Cycle.Status)
	require.Len(t, one.Endpoints, 1)
	require.Equal(t, int64(4), one.Endpoints[0].Attempts)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/cycles/"+uuid.NewString(), nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/cycles/not-a-uuid", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/cycles?status=weird", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/cycles?limit=-1", nil).Code)
}

func TestServer_ListAwards(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	seedAwards(t, env.awards)

	rec := env.do(t, http.MethodGet, "/v1/awards?min_value=100000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body awardList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2024-01-01", body.Query.From)
	require.Equal(t, "2024-01-31", body.Query.To)
	require.Len(t, body.Awards, 2)
	require.Equal(t, "Beta", body.Awards[0].CompanyName)
	require.Equal(t, "Alpha", body.Awards[1].CompanyName)
	require.Equal(t, award.Summary{Count: 2, Total: 2500000, CompanyCount: 2}, body.Summary)

	rec = env.do(t, http.MethodGet, "/v1/awards?from=2023-10-01&category=road+construction", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = awardList{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Awards, 3)
	require.Equal(t, "Gamma", body.Awards[0].CompanyName)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/awards?from=2024-02-10", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/awards?min_value=lots", nil).Code)
}

func TestServer_ListAwardsUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(Deps{
		Awards: failingLister{err: &award.TransportError{URL: "https://db.example", Status: http.StatusServiceUnavailable}},
		Clock:  system.Fixed(testNow),
	}, Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/awards", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.Error, "status 503")
	require.NotEmpty(t, body.Hint)
}

func TestServer_ExportAwards(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	seedAwards(t, env.awards)

	rec := env.do(t, http.MethodGet, "/v1/awards/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "awards_2024-01-01_2024-01-31.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "\ufeff"))
	require.Contains(t, rec.Body.String(), "Beta")

	rec = env.do(t, http.MethodGet, "/v1/awards/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/awards/export?format=table", nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/awards/export?format=pdf", nil).Code)
}

func TestServer_GetCompany(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	seedAwards(t, env.awards)
	env.lookup.company = registry.Company{Name: "ALPHA SRL", Address: "Cluj", TaxID: "111"}

	rec := env.do(t, http.MethodGet, "/v1/companies/RO111", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body companyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ALPHA SRL", body.Company.Name)
	require.Equal(t, registry.SearchURL("RO111"), body.SearchURL)
	require.NotNil(t, body.Awards)
	require.Equal(t, 2, body.Awards.Count)
	require.Equal(t, 590000.0, body.Awards.Total)
}

func TestServer_GetCompanyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantHint bool
	}{
		{name: "not found", err: registry.ErrNotFound, wantCode: http.StatusNotFound, wantHint: true},
		{name: "invalid", err: fmt.Errorf("%w: abc", registry.ErrInvalidID), wantCode: http.StatusBadRequest},
		{
			name:     "could not determine",
			err:      &award.TransportError{URL: "https://registry.example", Err: context.DeadlineExceeded},
			wantCode: http.StatusBadGateway,
			wantHint: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, Options{})
			env.lookup.err = tt.err

			rec := env.do(t, http.MethodGet, "/v1/companies/12345", nil)
			require.Equal(t, tt.wantCode, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantHint {
				require.Contains(t, body.Hint, "recom.ro")
			}
		})
	}
}

func TestServer_MissingDependencies(t *testing.T) {
	t.Parallel()

	srv := NewServer(Deps{}, Options{}, nil)
	for _, target := range []string{"/v1/cycles", "/v1/awards", "/v1/companies/1"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cycles", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- fakes ---

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type fakeRegistry struct {
	company registry.Company
	err     error
}

func (f *fakeRegistry) Company(context.Context, string) (registry.Company, error) {
	return f.company, f.err
}

type failingLister struct{ err error }

func (f failingLister) List(context.Context, award.Query) ([]award.Record, error) {
	return nil, f.err
}
