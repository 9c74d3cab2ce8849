// Package artifacts открывает файлы обученных моделей из каталога или объектного хранилища.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Source источник файлов моделей
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

// DirSource файлы моделей в локальном каталоге
type DirSource struct {
	Dir string
}

// Open открывает файл name в каталоге
func (s DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

func (s DirSource) String() string {
	return "dir:" + s.Dir
}

// S3Config параметры S3-совместимого хранилища
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Source файлы моделей в бакете S3/MinIO
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Source создает клиент MinIO для чтения артефактов
func NewS3Source(cfg S3Config) (*S3Source, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Source{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Open читает объект prefix+name из бакета
func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.prefix + name
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", key, err)
	}
	// GetObject ленивый, ошибки доступа видны только после Stat
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("s3 stat object %s: %w", key, err)
	}
	return obj, nil
}

func (s *S3Source) String() string {
	return "s3:" + s.bucket + "/" + s.prefix
}
