package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Bucket uploads guide images to an object storage bucket over a
// Supabase-compatible storage REST API.
type Bucket struct {
	endpoint   string
	name       string
	serviceKey string
	client     *http.Client
}

// NewBucket creates a bucket client. Endpoint is the storage API root,
// e.g. https://xyz.supabase.co/storage/v1.
func NewBucket(endpoint, name, serviceKey string) *Bucket {
	return &Bucket{
		endpoint:   strings.TrimRight(endpoint, "/"),
		name:       name,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// StepImagePath builds the storage path for a section screenshot.
// The same project+order pair always maps to the same path, so re-uploads
// after a reset overwrite instead of accumulating.
func StepImagePath(projectID string, order int) string {
	return fmt.Sprintf("projects/%s/step_%d.jpg", projectID, order)
}

// UploadObject stores data at the given path, overwriting any existing
// object, and returns the storage path for persistence.
func (b *Bucket) UploadObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/object/%s/%s", b.endpoint, b.name, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload to %s failed: status %d: %s", path, resp.StatusCode, body)
	}

	return path, nil
}
