package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore publishes a local build directory to an object storage bucket.
type ObjectStore interface {
	Sync(ctx context.Context, localDir, bucket, prefix string) (uploaded int, err error)
}

// S3Store implements ObjectStore on AWS S3.
type S3Store struct {
	client *s3.Client
}

func NewS3Store(ctx context.Context, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg)}, nil
}

// Sync walks localDir and uploads every regular file under bucket/prefix,
// preserving relative paths and setting content types by extension.
func (s *S3Store) Sync(ctx context.Context, localDir, bucket, prefix string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" {
			key = strings.TrimSuffix(prefix, "/") + "/" + key
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &bucket,
			Key:         &key,
			Body:        f,
			ContentType: &contentType,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}
	return uploaded, nil
}
