package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/plmhub/backend/internal/config"
	"github.com/plmhub/backend/pkg/logger"
)

type MinIOClient struct {
	client *minio.Client
	bucket string
}

var _ BlobStore = (*MinIOClient)(nil)

func NewMinIOClient(cfg config.MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinIOClient) Put(ctx context.Context, hintedPath string, reader io.Reader, size int64, contentType string) (PutResult, error) {
	info, err := m.client.PutObject(ctx, m.bucket, hintedPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("blob_put_failed", err, map[string]interface{}{
			"object_name": hintedPath,
			"size":        size,
			"bucket":      m.bucket,
		})
		return PutResult{}, err
	}

	logger.Info("blob_put", map[string]interface{}{
		"object_name": info.Key,
		"size":        info.Size,
		"bucket":      m.bucket,
	})
	return PutResult{Path: info.Key, Size: info.Size}, nil
}

func (m *MinIOClient) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("blob_get_failed", err, map[string]interface{}{
			"object_name": path,
			"bucket":      m.bucket,
		})
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		logger.Error("blob_get_stat_failed", err, map[string]interface{}{
			"object_name": path,
			"bucket":      m.bucket,
		})
		return nil, err
	}
	return obj, nil
}

func (m *MinIOClient) Delete(ctx context.Context, path string) error {
	err := m.client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("blob_delete_failed", err, map[string]interface{}{
			"object_name": path,
			"bucket":      m.bucket,
		})
	}
	return err
}

func (m *MinIOClient) PresignedGetURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	urlValue, err := m.client.PresignedGetObject(ctx, m.bucket, path, expiry, nil)
	if err != nil {
		return "", err
	}
	return urlValue.String(), nil
}

func (m *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	return nil
}
