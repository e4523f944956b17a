package app

import (
	"errors"
	"io"
	"testing"

	"github.com/fletar/fletar-backend/internal/clients/gcp"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

type stubBucket struct{}

func (stubBucket) UploadFile(dbc dbctx.Context, key string, file io.Reader) error { return nil }
func (stubBucket) DeleteFile(dbc dbctx.Context, key string) error                 { return nil }
func (stubBucket) GetPublicURL(key string) string                                 { return "https://cdn/" + key }
func (stubBucket) Close() error                                                   { return nil }

func withBucketFactory(t *testing.T, fn func(*logger.Logger, gcp.BucketConfig) (gcp.BucketService, error)) {
	t.Helper()
	prev := newBucketService
	newBucketService = fn
	t.Cleanup(func() { newBucketService = prev })
}

func TestResolveBucketServiceDisabledWithoutName(t *testing.T) {
	withBucketFactory(t, func(*logger.Logger, gcp.BucketConfig) (gcp.BucketService, error) {
		t.Fatalf("factory should not be called without a bucket name")
		return nil, nil
	})
	bucket, err := resolveBucketService(logger.Nop(), gcp.BucketConfig{Name: "  "})
	if err != nil || bucket != nil {
		t.Fatalf("expected storage to be disabled, got bucket=%v err=%v", bucket, err)
	}
}

func TestResolveBucketServiceInvalidCDN(t *testing.T) {
	_, err := resolveBucketService(logger.Nop(), gcp.BucketConfig{Name: "avatars", CDNDomain: "https://cdn.fletar.com.ar/"})
	var got *StorageBootstrapError
	if !errors.As(err, &got) || got.Code != StorageBootstrapErrorInvalidCDN {
		t.Fatalf("expected invalid_cdn_domain, got %v", err)
	}
}

func TestResolveBucketServiceConnectFailed(t *testing.T) {
	cause := errors.New("no credentials")
	withBucketFactory(t, func(*logger.Logger, gcp.BucketConfig) (gcp.BucketService, error) {
		return nil, cause
	})
	_, err := resolveBucketService(logger.Nop(), gcp.BucketConfig{Name: "avatars"})
	var got *StorageBootstrapError
	if !errors.As(err, &got) || got.Code != StorageBootstrapErrorConnectFailed || got.Bucket != "avatars" {
		t.Fatalf("expected connect_failed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should unwrap")
	}
}

func TestResolveBucketServiceReady(t *testing.T) {
	withBucketFactory(t, func(_ *logger.Logger, cfg gcp.BucketConfig) (gcp.BucketService, error) {
		if cfg.CDNDomain != "cdn.fletar.com.ar" {
			t.Fatalf("cdn domain not trimmed: %q", cfg.CDNDomain)
		}
		return stubBucket{}, nil
	})
	bucket, err := resolveBucketService(logger.Nop(), gcp.BucketConfig{Name: "avatars", CDNDomain: " cdn.fletar.com.ar "})
	if err != nil || bucket == nil {
		t.Fatalf("expected a bucket, got %v", err)
	}
}
