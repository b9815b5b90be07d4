package main

import (
	"errors"

	"obralog/internal/photos"
	"obralog/internal/storage"
	"obralog/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"
)

// openBlob returns nil when no storage is configured.
func openBlob(cfg *types.Config, awsConfig aws.Config, logger *logrus.Logger) (storage.Blob, error) {
	blob, err := storage.FromConfig(cfg, awsConfig)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logger.WithField("driver", cfg.StorageDriver).Warn("photo storage not configured, uploads disabled")
		return nil, nil
	case err != nil:
		return nil, err
	}

	return blob, nil
}

// photoFetcher downloads report photos from the storage public URL and the
// extra configured prefixes only.
func photoFetcher(cfg *types.Config, blob storage.Blob) *photos.HTTPFetcher {
	allowed := append([]string{}, cfg.PhotoFetchAllowedPrefixes...)
	if blob != nil {
		allowed = append(allowed, blob.PublicURL(""))
	}
	return photos.NewHTTPFetcher(allowed...)
}
