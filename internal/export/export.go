// Package export uploads finished render artifacts to S3-compatible object
// storage. It runs strictly after a successful render and is never part of
// either pipeline's success criteria.
package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/jasonagola/tennisvision/internal/config"
	"github.com/jasonagola/tennisvision/internal/project"
	"github.com/jasonagola/tennisvision/internal/store"
)

// Uploader pushes project artifacts to a bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// New connects to the configured endpoint and ensures the bucket exists.
func New(ctx context.Context, cfg config.ExportConfig, logger *zap.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("export: connect %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("export: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("export: create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.Named("export"),
	}, nil
}

// Composite uploads the rendered video and a JSON frame manifest for the
// project. Object keys are namespaced by project id.
func (u *Uploader) Composite(ctx context.Context, proj project.Context, frames store.FrameStore) error {
	videoPath := proj.Abs(proj.CompositePath())
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("export: no render artifact at %s: %w", proj.CompositePath(), err)
	}

	manifestPath := proj.Abs("manifest.json")
	if err := store.WriteManifest(ctx, frames, proj.ID, manifestPath); err != nil {
		return err
	}

	prefix := proj.ID.String()
	uploads := []struct {
		local       string
		key         string
		contentType string
	}{
		{videoPath, path.Join(prefix, project.CompositeFileName), "video/mp4"},
		{manifestPath, path.Join(prefix, "manifest.json"), "application/json"},
	}

	for _, up := range uploads {
		if err := u.put(ctx, up.local, up.key, up.contentType); err != nil {
			return err
		}
	}
	return nil
}

// put uploads one file with bounded exponential backoff, mirroring upload
// behavior for flaky object stores.
func (u *Uploader) put(ctx context.Context, local, key, contentType string) error {
	op := func() error {
		info, err := u.client.FPutObject(ctx, u.bucket, key, local,
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			u.logger.Warn("upload attempt failed",
				zap.String("key", key), zap.Error(err))
			return err
		}
		u.logger.Info("uploaded artifact",
			zap.String("key", key), zap.Int64("size", info.Size))
		return nil
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 500 * time.Millisecond
	ebo.MaxElapsedTime = 2 * time.Minute
	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, 5), ctx)

	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("export: upload %s: %w", key, err)
	}
	return nil
}
