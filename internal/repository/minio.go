package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/config"
)

// BlobStorage is the blob collaborator: raw submission archives and
// answer files live behind it.
type BlobStorage interface {
	Upload(ctx context.Context, data []byte, name, dir string) (string, error)
	Download(ctx context.Context, objectPath string) ([]byte, error)
	Delete(ctx context.Context, objectPath string) (bool, error)
}

type MinIORepository struct {
	client *minio.Client
	bucket string
	region string
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIORepository(cfg config.StorageConfig, logger zerolog.Logger) (*MinIORepository, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	repo := &MinIORepository{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger,
	}

	// Best-effort bootstrap: the service keeps running if MinIO is not
	// ready yet and retries the bucket check on demand.
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := repo.ensureBucket(ctx); err != nil {
		logger.Error().Err(err).
			Str("endpoint", cfg.Endpoint).
			Str("bucket", cfg.Bucket).
			Msg("MinIO not ready during startup; will retry on demand")
	} else {
		logger.Info().
			Str("endpoint", cfg.Endpoint).
			Str("bucket", cfg.Bucket).
			Bool("ssl", cfg.UseSSL).
			Msg("Connected to MinIO")
	}

	return repo, nil
}

func (r *MinIORepository) ensureBucket(ctx context.Context) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.bucketEnsured {
		return nil
	}

	backoff := 500 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("minio not ready: %w", err)
		}

		exists, err := r.client.BucketExists(ctx, r.bucket)
		if err != nil {
			time.Sleep(backoff)
			continue
		}

		if !exists {
			if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
				time.Sleep(backoff)
				continue
			}
			r.logger.Info().Str("bucket", r.bucket).Msg("Created new bucket")
		}

		r.bucketEnsured = true
		return nil
	}
}

func (r *MinIORepository) Upload(ctx context.Context, data []byte, name, dir string) (string, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return "", err
	}

	objectPath := path.Join(dir, name)

	info, err := r.client.PutObject(ctx, r.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	r.logger.Debug().
		Str("bucket", r.bucket).
		Str("object", objectPath).
		Str("etag", info.ETag).
		Int("size", len(data)).
		Msg("Uploaded object to MinIO")

	return objectPath, nil
}

func (r *MinIORepository) Download(ctx context.Context, objectPath string) ([]byte, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return nil, err
	}

	object, err := r.client.GetObject(ctx, r.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", objectPath, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.New("object not found")
		}
		return nil, fmt.Errorf("failed to read %s: %w", objectPath, err)
	}

	r.logger.Debug().
		Str("bucket", r.bucket).
		Str("object", objectPath).
		Int("size", len(data)).
		Msg("Downloaded object from MinIO")

	return data, nil
}

func (r *MinIORepository) Delete(ctx context.Context, objectPath string) (bool, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return false, err
	}

	if _, err := r.client.StatObject(ctx, r.bucket, objectPath, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}

	if err := r.client.RemoveObject(ctx, r.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", objectPath, err)
	}

	r.logger.Debug().
		Str("bucket", r.bucket).
		Str("object", objectPath).
		Msg("Deleted object from MinIO")

	return true, nil
}
