package gcpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/biorag/engine/internal/model"
)

// StorageAdapter wraps the GCS client: object upload and download, signed URLs,
// and content fingerprints (worker.PDFArtifactFingerprinter).
type StorageAdapter struct {
	client *storage.Client
}

// NewStorageAdapter creates a StorageAdapter.
func NewStorageAdapter(ctx context.Context) (*StorageAdapter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewStorageAdapter: %w", err)
	}
	return &StorageAdapter{client: client}, nil
}

// SignedURL generates a signed URL for client-side upload/download.
func (a *StorageAdapter) SignedURL(bucket, object string, opts *storage.SignedURLOptions) (string, error) {
	return a.client.Bucket(bucket).SignedURL(object, opts)
}

// Upload writes data to a GCS object.
func (a *StorageAdapter) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	w := a.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcpclient.Upload write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcpclient.Upload close: %w", err)
	}
	return nil
}

// SignedDownloadURL generates a signed GET URL for downloading an object.
func (a *StorageAdapter) SignedDownloadURL(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	url, err := a.client.Bucket(bucket).SignedURL(object, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	})
	if err != nil {
		return "", fmt.Errorf("gcpclient.SignedDownloadURL: %w", err)
	}
	return url, nil
}

// Download reads an object from GCS.
func (a *StorageAdapter) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.Download: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close closes the underlying client.
func (a *StorageAdapter) Close() {
	a.client.Close()
}

// Fingerprint computes the (size, last-updated time, sha-256) fingerprint of a GCS
// object addressed by gs://bucket/object, satisfying worker.PDFArtifactFingerprinter.
// Mirrors worker.Fingerprint's local-filesystem contract for GCS-backed artifacts.
func (a *StorageAdapter) Fingerprint(ctx context.Context, gcsURI string) (model.FileInfo, error) {
	bucket, object, err := parseGCSURI(gcsURI)
	if err != nil {
		return model.FileInfo{}, fmt.Errorf("gcpclient.Fingerprint: %w", err)
	}

	attrs, err := a.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return model.FileInfo{}, fmt.Errorf("gcpclient.Fingerprint: attrs: %w", err)
	}

	r, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return model.FileInfo{}, fmt.Errorf("gcpclient.Fingerprint: reader: %w", err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return model.FileInfo{}, fmt.Errorf("gcpclient.Fingerprint: hash: %w", err)
	}

	return model.FileInfo{
		Path:   gcsURI,
		Size:   attrs.Size,
		Mtime:  attrs.Updated.Unix(),
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
