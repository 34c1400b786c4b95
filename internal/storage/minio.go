package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options 对象存储连接配置
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// BlobFetcher 从对象存储下载文档
type BlobFetcher interface {
	Download(ctx context.Context, container, blob string) ([]byte, error)
}

// MinIOFetcher 基于MinIO/S3兼容接口的实现。客户端在首次下载时创建，
// 配置缺失不影响服务启动。
type MinIOFetcher struct {
	opts Options

	mu     sync.Mutex
	client *minio.Client
}

// NewMinIOFetcher 创建下载器
func NewMinIOFetcher(opts Options) *MinIOFetcher {
	return &MinIOFetcher{opts: opts}
}

func (f *MinIOFetcher) getClient() (*minio.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	opts := f.opts
	if opts.Endpoint == "" {
		return nil, errors.New("storage endpoint not configured")
	}

	// minio.New 不接受协议前缀，协议由 UseSSL 决定
	endpoint := opts.Endpoint
	if strings.HasPrefix(endpoint, "https://") {
		opts.UseSSL = true
	} else if strings.HasPrefix(endpoint, "http://") {
		opts.UseSSL = false
	}
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimRight(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	f.client = client
	return client, nil
}

// Download 读取整个对象；对象为空时返回错误
func (f *MinIOFetcher) Download(ctx context.Context, container, blob string) ([]byte, error) {
	client, err := f.getClient()
	if err != nil {
		return nil, err
	}
	object, err := client.GetObject(ctx, container, blob, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", container, blob, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", container, blob, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("object %s/%s is empty", container, blob)
	}
	return data, nil
}
