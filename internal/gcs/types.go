package gcs

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadBytes writes data to bucketName/objectName and returns its gs:// URI.
	UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// IsURI reports whether s names a Cloud Storage object.
func IsURI(s string) bool {
	return len(s) > len(uriScheme) && s[:len(uriScheme)] == uriScheme
}

const uriScheme = "gs://"
