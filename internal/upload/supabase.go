package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SupabaseStorage uploads objects to a Supabase Storage bucket over its
// REST API and returns public URLs.
type SupabaseStorage struct {
	BaseURL string
	Key     string
	Bucket  string
	HTTP    *http.Client
}

// NewSupabaseStorage builds a storage client with a traced HTTP transport.
func NewSupabaseStorage(baseURL, key, bucket string) *SupabaseStorage {
	return &SupabaseStorage{
		BaseURL: baseURL,
		Key:     key,
		Bucket:  bucket,
		HTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Upload stores the object and returns its public URL.
func (s *SupabaseStorage) Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.BaseURL, s.Bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.Key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload object: status %d: %s", resp.StatusCode, snippet)
	}
	return s.PublicURL(objectPath), nil
}

// PublicURL returns the public address of an object in the bucket.
func (s *SupabaseStorage) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.BaseURL, s.Bucket, objectPath)
}
