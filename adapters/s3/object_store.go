// Package s3 implements the remote object store on Amazon S3 (or any
// S3-compatible endpoint such as MinIO).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"

	"lectura/domain/repositories"
)

// ObjectStore stores audio chunks as S3 objects under deterministic keys.
type ObjectStore struct {
	client *awss3.S3
	bucket string
}

var _ repositories.ObjectStore = (*ObjectStore)(nil)

// NewObjectStore builds an S3-backed object store. Credentials and region
// come from the standard AWS environment; LECTURA_S3_ENDPOINT optionally
// points at an S3-compatible server.
func NewObjectStore(bucket string) (*ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	cfg := aws.NewConfig()
	if endpoint := os.Getenv("LECTURA_S3_ENDPOINT"); endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return &ObjectStore{
		client: awss3.New(sess),
		bucket: bucket,
	}, nil
}

// Put uploads the object, overwriting any existing one at the key.
func (s *ObjectStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// List returns the keys under the prefix. S3 already lists lexicographically,
// which for zero-padded chunk indices is sequence order.
func (s *ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *awss3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
	}
	return keys, nil
}

// Get downloads the object bytes.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeletePrefix removes every object under the prefix in batches.
func (s *ObjectStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	const batchSize = 1000
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		objects := make([]*awss3.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, &awss3.ObjectIdentifier{Key: aws.String(key)})
		}
		_, err := s.client.DeleteObjectsWithContext(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &awss3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects under %s: %w", prefix, err)
		}
	}
	return nil
}
