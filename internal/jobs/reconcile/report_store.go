package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
)

// ReportStore archives sweep reports as JSON objects so an operator can audit
// what the reconciler did without database access.
type ReportStore struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

func NewReportStore(client *minio.Client, bucket string) *ReportStore {
	return &ReportStore{
		client: client,
		bucket: strings.TrimSpace(bucket),
	}
}

func (s *ReportStore) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if !exists {
			s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		}
	})

	if s.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr)
	}

	return nil
}

func (s *ReportStore) PutReport(ctx context.Context, key string, report Report) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("report key is empty")
	}

	if err := s.EnsureBucket(ctx); err != nil {
		return err
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reconcile report: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put reconcile report to s3: %w", err)
	}

	return nil
}
