package notionsync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/vendor-insights/internal/bigquery"
	"github.com/jomei/notionapi"
)

type MockCategorySource struct {
	ListVendorCategoriesFunc func(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error)
}

func (m *MockCategorySource) ListVendorCategories(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error) {
	return m.ListVendorCategoriesFunc(ctx, filter)
}

// MockNotion records calls and serves pre-built query pages.
type MockNotion struct {
	Pages      [][]notionapi.Page
	CreateErr  error
	Created    []notionapi.Properties
	Updated    []string
	Deleted    []string
	queryCalls int
}

func (m *MockNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.Created = append(m.Created, properties)
	return &notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("new-%d", len(m.Created)))}, nil
}

func (m *MockNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.Updated = append(m.Updated, pageID)
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *MockNotion) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	i := m.queryCalls
	m.queryCalls++
	if i >= len(m.Pages) {
		return &notionapi.DatabaseQueryResponse{}, nil
	}
	if i > 0 && filter.StartCursor != notionapi.Cursor(fmt.Sprintf("cursor-%d", i)) {
		return nil, fmt.Errorf("unexpected cursor %q", filter.StartCursor)
	}
	resp := &notionapi.DatabaseQueryResponse{Results: m.Pages[i]}
	if i+1 < len(m.Pages) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(fmt.Sprintf("cursor-%d", i+1))
	}
	return resp, nil
}

func (m *MockNotion) DeletePage(ctx context.Context, pageID string) error {
	m.Deleted = append(m.Deleted, pageID)
	return nil
}

func page(id, key string) notionapi.Page {
	props := notionapi.Properties{}
	if key != "" {
		props[propKey] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: key}},
		}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func labels() []*bq.VendorCategoryRow {
	vendor := buyerLabel()
	vendor.BuyerID = bigquery.NullInt64{}
	vendor.BuyerName = bigquery.NullString{}
	vendor.Level = "vendor"
	return []*bq.VendorCategoryRow{buyerLabel(), vendor}
}

func source(rows []*bq.VendorCategoryRow) *MockCategorySource {
	return &MockCategorySource{
		ListVendorCategoriesFunc: func(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error) {
			return rows, nil
		},
	}
}

func TestSyncVendorCategories(t *testing.T) {
	notion := &MockNotion{
		Pages: [][]notionapi.Page{
			{page("p1", "AAACX1234A/586/12m"), page("p2", "")},
			{page("p3", "OLDVENDOR1/all/12m"), page("p4", "AAACX1234A/586/12m")},
		},
	}

	res, err := SyncVendorCategories(context.Background(), source(labels()), notion, "db", bq.CategoryFilter{}, Options{BatchSize: 1})
	if err != nil {
		t.Fatalf("SyncVendorCategories() error = %v", err)
	}

	if notion.queryCalls != 2 {
		t.Errorf("query calls = %d, want 2", notion.queryCalls)
	}
	if res.Updated != 1 || len(notion.Updated) != 1 || notion.Updated[0] != "p1" {
		t.Errorf("updated = %d %v, want p1", res.Updated, notion.Updated)
	}
	if res.Created != 1 || len(notion.Created) != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}
	if res.Deleted != 3 {
		t.Errorf("deleted = %d (%v), want keyless, stale and duplicate pages", res.Deleted, notion.Deleted)
	}
}

func TestSyncVendorCategories_NarrowedFilterKeepsOtherPages(t *testing.T) {
	notion := &MockNotion{
		Pages: [][]notionapi.Page{{page("p3", "OLDVENDOR1/all/12m")}},
	}

	filter := bq.CategoryFilter{VendorID: "AAACX1234A"}
	res, err := SyncVendorCategories(context.Background(), source(labels()), notion, "db", filter, Options{})
	if err != nil {
		t.Fatalf("SyncVendorCategories() error = %v", err)
	}
	if res.Deleted != 0 || len(notion.Deleted) != 0 {
		t.Errorf("deleted = %v, want none for a narrowed sync", notion.Deleted)
	}
	if res.Created != 2 {
		t.Errorf("created = %d, want 2", res.Created)
	}
}

func TestSyncVendorCategories_DryRun(t *testing.T) {
	notion := &MockNotion{
		Pages: [][]notionapi.Page{{page("p1", "AAACX1234A/586/12m"), page("p2", "")}},
	}

	res, err := SyncVendorCategories(context.Background(), source(labels()), notion, "db", bq.CategoryFilter{}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("SyncVendorCategories() error = %v", err)
	}
	if len(notion.Created)+len(notion.Updated)+len(notion.Deleted) != 0 {
		t.Error("dry run must not write to Notion")
	}
	if res.Created != 1 || res.Updated != 1 || res.Deleted != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestSyncVendorCategories_Errors(t *testing.T) {
	failing := &MockCategorySource{
		ListVendorCategoriesFunc: func(ctx context.Context, filter bq.CategoryFilter) ([]*bq.VendorCategoryRow, error) {
			return nil, errors.New("warehouse down")
		},
	}
	if _, err := SyncVendorCategories(context.Background(), failing, &MockNotion{}, "db", bq.CategoryFilter{}, Options{}); err == nil {
		t.Error("expected error when labels cannot be read")
	}

	notion := &MockNotion{CreateErr: errors.New("rate limited")}
	res, err := SyncVendorCategories(context.Background(), source(labels()), notion, "db", bq.CategoryFilter{}, Options{})
	if err != nil {
		t.Fatalf("page failures should not abort the sync: %v", err)
	}
	if res.Failed != 2 || res.Created != 0 {
		t.Errorf("result = %+v", res)
	}
}
