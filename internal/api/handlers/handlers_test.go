package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/dvloznov/vendor-insights/internal/jobs"
	"github.com/dvloznov/vendor-insights/internal/jobs/inmemory"
	"github.com/rs/zerolog"
)

// MockRunStore is a mock implementation of RunStore for testing.
type MockRunStore struct {
	ListMetricRunsFunc func(ctx context.Context, limit int) ([]*bq.MetricRunRow, error)
	DeleteRunFunc      func(ctx context.Context, runID string) error
}

func (m *MockRunStore) ListMetricRuns(ctx context.Context, limit int) ([]*bq.MetricRunRow, error) {
	return m.ListMetricRunsFunc(ctx, limit)
}

func (m *MockRunStore) DeleteRun(ctx context.Context, runID string) error {
	return m.DeleteRunFunc(ctx, runID)
}

// MockCategoryStore is a mock implementation of CategoryStore for testing.
type MockCategoryStore struct {
	ListVendorCategoriesFunc func(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error)
}

func (m *MockCategoryStore) ListVendorCategories(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error) {
	return m.ListVendorCategoriesFunc(ctx, filter)
}

// MockPublisher captures published jobs.
type MockPublisher struct {
	Published []*jobs.ComputeMetricsJob
	Err       error
}

func (m *MockPublisher) PublishComputeMetrics(ctx context.Context, job *jobs.ComputeMetricsJob) error {
	if m.Err != nil {
		return m.Err
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.Published = append(m.Published, job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// MockStorage serves fixed objects by URI.
type MockStorage struct {
	Objects map[string][]byte
}

func (m *MockStorage) UploadBytes(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *MockStorage) FetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	data, ok := m.Objects[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestCreateRun(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, job *jobs.ComputeMetricsJob)
	}{
		{
			name:       "defaults source",
			body:       `{"as_of":"2024-06","export":true}`,
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, job *jobs.ComputeMetricsJob) {
				if job.Source != "bigquery" {
					t.Errorf("Source = %q, want bigquery", job.Source)
				}
				if job.AsOf != (civil.Date{Year: 2024, Month: time.June, Day: 1}) {
					t.Errorf("AsOf = %v", job.AsOf)
				}
				if !job.Export || job.MaxRetries != 2 {
					t.Errorf("job = %+v", job)
				}
			},
		},
		{
			name:       "day is truncated to month",
			body:       `{"as_of":"2024-06-17","from":"2023-04-01","source":"postgres","history":true}`,
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, job *jobs.ComputeMetricsJob) {
				if job.AsOf.Day != 1 || job.From != (civil.Date{Year: 2023, Month: time.April, Day: 1}) {
					t.Errorf("AsOf = %v, From = %v", job.AsOf, job.From)
				}
				if job.Source != "postgres" || !job.History {
					t.Errorf("job = %+v", job)
				}
			},
		},
		{name: "latest month when as_of omitted", body: `{}`, wantStatus: http.StatusAccepted, check: func(t *testing.T, job *jobs.ComputeMetricsJob) {
			if job.AsOf.IsValid() {
				t.Errorf("AsOf = %v, want zero", job.AsOf)
			}
		}},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "unknown source", body: `{"source":"mysql"}`, wantStatus: http.StatusBadRequest},
		{name: "bad date", body: `{"as_of":"June 2024"}`, wantStatus: http.StatusBadRequest},
		{name: "as_of before from", body: `{"as_of":"2023-01","from":"2024-01"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &MockPublisher{}
			h := NewRunsHandler(&MockRunStore{}, pub, "bigquery", 2, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.check == nil {
				if len(pub.Published) != 0 {
					t.Error("rejected request should not publish")
				}
				return
			}
			if len(pub.Published) != 1 {
				t.Fatalf("published %d jobs, want 1", len(pub.Published))
			}
			if body := decode(t, rec); body["job_id"] != "job-1" || body["status"] != "pending" {
				t.Errorf("body = %v", body)
			}
			tt.check(t, pub.Published[0])
		})
	}
}

func TestCreateRun_PublishError(t *testing.T) {
	h := NewRunsHandler(&MockRunStore{}, &MockPublisher{Err: errors.New("queue is closed")}, "bigquery", 3, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{}`)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	var gotLimit int
	store := &MockRunStore{
		ListMetricRunsFunc: func(ctx context.Context, limit int) ([]*bq.MetricRunRow, error) {
			gotLimit = limit
			return []*bq.MetricRunRow{{RunID: "r1", Status: bq.RunStatusSuccess}}, nil
		},
	}
	h := NewRunsHandler(store, &MockPublisher{}, "bigquery", 3, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d, want 5", gotLimit)
	}
	if body := decode(t, rec); body["count"] != float64(1) {
		t.Errorf("body = %v", body)
	}

	rec = httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil))
	if gotLimit != 20 {
		t.Errorf("invalid limit should fall back to 20, got %d", gotLimit)
	}
}

func TestDeleteRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"deleted", nil, http.StatusNoContent},
		{"warehouse error", errors.New("streaming buffer"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID string
			store := &MockRunStore{DeleteRunFunc: func(ctx context.Context, runID string) error {
				gotID = runID
				return tt.err
			}}
			h := NewRunsHandler(store, &MockPublisher{}, "bigquery", 3, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.DeleteRun(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/r1", nil), "r1")

			if rec.Code != tt.want || gotID != "r1" {
				t.Errorf("status = %d, runID = %q", rec.Code, gotID)
			}
		})
	}
}

func TestListVendors(t *testing.T) {
	var got bq.CategoryFilter
	repo := &MockCategoryStore{
		ListVendorCategoriesFunc: func(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error) {
			got = filter
			return nil, nil
		},
	}
	h := NewVendorsHandler(repo, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListVendors(rec, httptest.NewRequest(http.MethodGet, "/api/vendors?run_id=r9&vendor_id=%20aaapl1234c&window=12&limit=50", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := bq.CategoryFilter{RunID: "r9", VendorID: "AAAPL1234C", WindowMonths: 12, Limit: 50}
	if got != want {
		t.Errorf("filter = %+v, want %+v", got, want)
	}
	body := decode(t, rec)
	if vendors, ok := body["vendors"].([]interface{}); !ok || len(vendors) != 0 {
		t.Errorf("vendors = %v, want empty array", body["vendors"])
	}
}

func TestFiscal(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantPeriod string
		wantYear   string
	}{
		{"date=2024-04-01", http.StatusOK, "FY25 Q1", "FY25"},
		{"date=2025-03-31", http.StatusOK, "FY25 Q4", "FY25"},
		{"date=2024-12", http.StatusOK, "FY25 Q3", "FY25"},
		{"", http.StatusBadRequest, "", ""},
		{"date=31/03/2025", http.StatusBadRequest, "", ""},
	}

	h := NewAnalysisHandler(nil, nil, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Fiscal(rec, httptest.NewRequest(http.MethodGet, "/api/fiscal?"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decode(t, rec)
			if body["period"] != tt.wantPeriod || body["fiscal_year"] != tt.wantYear {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestRevenueShare(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantShare   float64
		wantMatched bool
	}{
		{"flat share of discount", `{"buyer_id":586,"amount":500000,"effective_discount":10000}`, http.StatusOK, 950, true},
		{"buyer without rule", `{"buyer_id":42,"amount":500000,"effective_discount":10000}`, http.StatusOK, 0, false},
		{"missing buyer", `{"amount":1}`, http.StatusBadRequest, 0, false},
		{"negative amount", `{"buyer_id":586,"amount":-1}`, http.StatusBadRequest, 0, false},
		{"invalid json", `[]`, http.StatusBadRequest, 0, false},
	}

	h := NewAnalysisHandler(nil, nil, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.RevenueShare(rec, httptest.NewRequest(http.MethodPost, "/api/revenue-share", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decode(t, rec)
			if share, _ := body["revenue_share"].(float64); share < tt.wantShare-0.01 || share > tt.wantShare+0.01 {
				t.Errorf("revenue_share = %v, want %v", body["revenue_share"], tt.wantShare)
			}
			if body["matched"] != tt.wantMatched {
				t.Errorf("matched = %v, want %v", body["matched"], tt.wantMatched)
			}
		})
	}
}

const companiesCSV = `PAN,Name,Month,Intake,Industry,Current Ratio,Annual Revenue
AAAPL1234C,Acme Steel,2024-04-01,1000000,Steel,1.5,100000000
AAAPL1234C,Acme Steel,2024-05-01,1000000,Steel,1.5,100000000
BBBPL5678D,Beta Metals,2024-05-01,500000,Steel,2.5,
`

func TestEnrich(t *testing.T) {
	storage := &MockStorage{Objects: map[string][]byte{"gs://bucket/companies.csv": []byte(companiesCSV)}}

	tests := []struct {
		name          string
		contentType   string
		body          string
		wantStatus    int
		wantCompanies int
	}{
		{"csv upload", "text/csv", companiesCSV, http.StatusOK, 2},
		{"gcs uri", "application/json", `{"gcs_uri":"gs://bucket/companies.csv"}`, http.StatusOK, 2},
		{"gcs object missing", "application/json", `{"gcs_uri":"gs://bucket/nope.csv"}`, http.StatusBadGateway, 0},
		{"not a gcs uri", "application/json", `{"gcs_uri":"/tmp/companies.csv"}`, http.StatusBadRequest, 0},
		{"empty upload", "text/csv", "  ", http.StatusBadRequest, 0},
		{"missing industry column", "text/csv", "PAN,Month\nP1,2024-04-01\n", http.StatusBadRequest, 0},
	}

	h := NewAnalysisHandler(nil, storage, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/enrich", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.Enrich(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decode(t, rec)
			companies, _ := body["companies"].([]interface{})
			if len(companies) != tt.wantCompanies {
				t.Errorf("companies = %d, want %d", len(companies), tt.wantCompanies)
			}
			industries, _ := body["industries"].([]interface{})
			if len(industries) != 1 {
				t.Errorf("industries = %v, want Steel only", body["industries"])
			}
		})
	}
}

func TestEnrich_NoStorage(t *testing.T) {
	h := NewAnalysisHandler(nil, nil, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/enrich", strings.NewReader(`{"gcs_uri":"gs://bucket/companies.csv"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Enrich(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestJobsHandler(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()
	now := time.Now()
	_ = store.SaveJob(ctx, &jobs.ComputeMetricsJob{JobID: "a", Source: "bigquery", Status: jobs.JobStatusCompleted, CreatedAt: now})
	_ = store.SaveJob(ctx, &jobs.ComputeMetricsJob{JobID: "b", Source: "csv", Status: jobs.JobStatusFailed, CreatedAt: now.Add(time.Second)})

	h := NewJobsHandler(store, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/a", nil), "a")
	if rec.Code != http.StatusOK {
		t.Fatalf("GetJob status = %d", rec.Code)
	}
	if body := decode(t, rec); body["job_id"] != "a" || body["status"] != "completed" {
		t.Errorf("GetJob body = %v", body)
	}

	rec = httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/zzz", nil), "zzz")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?source=csv", nil))
	body := decode(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("ListJobs body = %v", body)
	}
}
