package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/crlx1q/antimat/internal/config"
)

func TestNewObjectStoreParsesSchemeEndpoint(t *testing.T) {
	store, err := NewObjectStore(config.StorageConfig{
		Endpoint:  "https://s3.example.com:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "antimat-updates",
	})
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}
	if got := store.client.EndpointURL().Host; got != "s3.example.com:9000" {
		t.Fatalf("endpoint host = %q", got)
	}
	if store.client.EndpointURL().Scheme != "https" {
		t.Fatalf("expected https scheme, got %q", store.client.EndpointURL().Scheme)
	}
}

func TestMapErrRecognisesMissingKey(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	if !errors.Is(mapErr(missing), ErrObjectNotFound) {
		t.Fatal("NoSuchKey should map to ErrObjectNotFound")
	}
	other := minio.ErrorResponse{Code: "AccessDenied"}
	if errors.Is(mapErr(other), ErrObjectNotFound) {
		t.Fatal("AccessDenied must not map to ErrObjectNotFound")
	}
	if mapErr(nil) != nil {
		t.Fatal("nil stays nil")
	}
}
