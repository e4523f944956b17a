package app

import (
	"fmt"
	"strings"

	"github.com/fletar/fletar-backend/internal/clients/gcp"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

var newBucketService = gcp.NewBucketService

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidCDN    StorageBootstrapErrorCode = "invalid_cdn_domain"
	StorageBootstrapErrorConnectFailed StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code   StorageBootstrapErrorCode
	Bucket string
	Cause  error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "avatar storage bootstrap failed"
	}
	return fmt.Sprintf("avatar storage bootstrap failed (code=%s bucket=%q): %v", e.Code, e.Bucket, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService returns nil without error when no bucket is
// configured; avatar uploads then answer 503 and signups skip the generated
// avatar.
func resolveBucketService(log *logger.Logger, cfg gcp.BucketConfig) (gcp.BucketService, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.CDNDomain = strings.TrimSpace(cfg.CDNDomain)
	if cfg.Name == "" {
		log.Warn("AVATAR_GCS_BUCKET_NAME not set; avatar storage disabled")
		return nil, nil
	}
	if strings.Contains(cfg.CDNDomain, "/") {
		err := &StorageBootstrapError{
			Code:   StorageBootstrapErrorInvalidCDN,
			Bucket: cfg.Name,
			Cause:  fmt.Errorf("AVATAR_CDN_DOMAIN must be a bare host, got %q", cfg.CDNDomain),
		}
		log.Error("Avatar storage selection failed", "bucket", cfg.Name, "error_code", err.Code, "error", err)
		return nil, err
	}
	bucket, err := newBucketService(log, cfg)
	if err != nil {
		wrapped := &StorageBootstrapError{Code: StorageBootstrapErrorConnectFailed, Bucket: cfg.Name, Cause: err}
		log.Error("Avatar storage connect failed", "bucket", cfg.Name, "error_code", wrapped.Code, "error", err)
		return nil, wrapped
	}
	log.Info("Avatar storage ready", "bucket", cfg.Name, "cdn_domain", cfg.CDNDomain)
	return bucket, nil
}
