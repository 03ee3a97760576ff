package gcsuploader

import (
	"testing"

	"github.com/dvloznov/vendor-insights/internal/gcs"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://reports/2024/09/summary.csv", "reports", "2024/09/summary.csv", false},
		{"gs://reports/x.csv", "reports", "x.csv", false},
		{"gs://reports", "", "", true},
		{"gs://reports/", "", "", true},
		{"s3://reports/x.csv", "", "", true},
		{"/tmp/x.csv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("got (%q, %q), want (%q, %q)", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/vendors.csv": "vendors.csv",
		"gs://bucket/vendors.csv":        "vendors.csv",
		"gs://bucket":                    "bucket",
	}
	for uri, want := range tests {
		if got := ExtractFilenameFromGCSURI(uri); got != want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestURIRoundTrip(t *testing.T) {
	uri := URI("reports", "runs/abc/vendor_summary.csv")
	if !gcs.IsURI(uri) {
		t.Fatalf("IsURI(%q) = false", uri)
	}
	bucket, object, err := ParseURI(uri)
	if err != nil || bucket != "reports" || object != "runs/abc/vendor_summary.csv" {
		t.Errorf("ParseURI(URI()) = %q, %q, %v", bucket, object, err)
	}
	if gcs.IsURI("reports/x.csv") {
		t.Error("IsURI should reject local paths")
	}
}
