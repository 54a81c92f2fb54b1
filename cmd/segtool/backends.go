package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/segstore/blobstore"
	blobminio "github.com/hupe1980/segstore/blobstore/minio"
	blobs3 "github.com/hupe1980/segstore/blobstore/s3"
	"github.com/hupe1980/segstore/revisions"
	"github.com/hupe1980/segstore/revisions/dynamo"
)

// openBlobStore builds the blob store named by rawURL. An empty rawURL means no
// blob store. A positive cacheSize puts a block cache in front of it.
func openBlobStore(ctx context.Context, rawURL string, cacheSize int64) (blobstore.BlobStore, error) {
	if rawURL == "" {
		return nil, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid --blob-store %q: %w", rawURL, err)
	}

	var bs blobstore.BlobStore
	switch u.Scheme {
	case "", "file":
		bs = blobstore.NewLocalStore(u.Host + u.Path)
	case "s3":
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		bs = blobs3.NewStore(s3.NewFromConfig(cfg), u.Host, strings.TrimPrefix(u.Path, "/"))
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid --blob-store %q: missing bucket", rawURL)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: os.Getenv("MINIO_SECURE") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		bs = blobminio.NewStore(client, bucket, prefix)
	default:
		return nil, fmt.Errorf("invalid --blob-store %q: unsupported scheme %q", rawURL, u.Scheme)
	}

	if cacheSize > 0 {
		bs = blobstore.NewCachingStore(bs, cacheSize, 0, nil)
	}
	return bs, nil
}

// openRevisions builds the head store named by rawURL. An empty rawURL means none.
func openRevisions(ctx context.Context, rawURL string) (revisions.Revisions, error) {
	if rawURL == "" {
		return nil, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid --revisions %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "bolt":
		b, err := revisions.OpenBolt(u.Host+u.Path, revisions.BoltOptions{})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "dynamodb":
		store := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || store == "" {
			return nil, fmt.Errorf("invalid --revisions %q: want dynamodb://<table>/<store>", rawURL)
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return dynamo.New(dynamodb.NewFromConfig(cfg), u.Host, store), nil
	default:
		return nil, fmt.Errorf("invalid --revisions %q: unsupported scheme %q", rawURL, u.Scheme)
	}
}
