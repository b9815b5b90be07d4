package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"obralog/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
)

var (
	ErrDisabled     = errors.New("photo storage is not configured")
	ErrUnauthorized = errors.New("storage rejected the credentials")
	ErrTooLarge     = errors.New("storage rejected the object size")
)

// Blob stores photo bytes under a key and hands back the URL that the
// problem record keeps.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// FromConfig builds the backend named by STORAGE_DRIVER. ErrDisabled is
// returned when the driver's write credential is missing.
func FromConfig(cfg *types.Config, awsConfig aws.Config) (Blob, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "supabase":
		if cfg.StorageToken == "" || cfg.SupabaseProjectID == "" {
			return nil, ErrDisabled
		}
		return NewSupabaseStorage(cfg.SupabaseProjectID, cfg.StorageToken, cfg.StorageBucket), nil
	case "minio":
		if cfg.StorageToken == "" || cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" {
			return nil, ErrDisabled
		}
		return NewMinioStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.StorageToken, cfg.StorageBucket, cfg.MinioUseSSL, cfg.StoragePublicBaseURL)
	case "s3", "":
		if cfg.StorageBucket == "" {
			return nil, ErrDisabled
		}
		return NewS3Storage(awsConfig, cfg.StorageBucket, cfg.StoragePublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// classifyStatus maps a storage HTTP status onto the sentinel errors.
func classifyStatus(status int, body string) error {
	switch status {
	case 401, 403:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, status, body)
	case 413:
		return fmt.Errorf("%w: status %d: %s", ErrTooLarge, status, body)
	default:
		return fmt.Errorf("storage request failed with status %d: %s", status, body)
	}
}
