package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/calderasec/lurelab/pkg/config"
)

// FileStore persists rendered report files by path.
type FileStore interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// LocalStore keeps report files on the local disk, rooted at a directory.
type LocalStore struct {
	root string
}

var _ FileStore = (*LocalStore)(nil)

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Put(_ context.Context, path string, data []byte) error {
	full := filepath.Join(s.root, filepath.Clean(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.Clean(path)))
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(filepath.Join(s.root, filepath.Clean(path))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting report file: %w", err)
	}
	return nil
}

// S3Store keeps report files in an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

var _ FileStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading report: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading report body: %w", err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	return nil
}

// NewFileStore builds the store selected by configuration.
func NewFileStore(ctx context.Context, cfg *config.ReportsConfig) (FileStore, error) {
	switch cfg.Backend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("reports backend s3 requires a bucket")
		}
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region)
	case "", "local":
		return NewLocalStore(cfg.LocalDir), nil
	}
	return nil, fmt.Errorf("unknown reports backend %q", cfg.Backend)
}
