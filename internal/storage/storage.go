package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver keeps a copy of analysed uploads.
type Archiver interface {
	// Archive copies the file at localPath under name and returns where it was stored.
	Archive(ctx context.Context, name, localPath, contentType string) (string, error)
}

// New builds the archiver selected by cfg.Type. StorageNone returns (nil, nil).
func New(ctx context.Context, cfg config.StorageConfig) (Archiver, error) {
	switch cfg.Type {
	case config.StorageNone, "":
		return nil, nil
	case config.StorageLocal:
		return &LocalArchiver{Dir: cfg.LocalPath}, nil
	case config.StorageMinio:
		return NewMinioArchiver(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// LocalArchiver copies uploads into a directory.
type LocalArchiver struct {
	Dir string
}

func (a *LocalArchiver) Archive(ctx context.Context, name, localPath, contentType string) (string, error) {
	dst := filepath.Join(a.Dir, filepath.Base(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if localPath == dst {
		return dst, nil
	}

	srcFile, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return "", err
	}
	return dst, dstFile.Close()
}

// MinioArchiver uploads into a MinIO (or any S3 compatible) bucket.
type MinioArchiver struct {
	Client *minio.Client
	Bucket string
}

// NewMinioArchiver connects to the endpoint and creates the bucket when missing.
func NewMinioArchiver(ctx context.Context, cfg config.StorageConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
	}
	return &MinioArchiver{Client: client, Bucket: cfg.MinioBucket}, nil
}

func (a *MinioArchiver) Archive(ctx context.Context, name, localPath, contentType string) (string, error) {
	_, err := a.Client.FPutObject(ctx, a.Bucket, name, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return "/" + a.Bucket + "/" + name, nil
}
