package main

import (
	"testing"

	"obralog/internal/storage"
	"obralog/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoFetcherAllowsStorageAndExtraPrefixes(t *testing.T) {
	cfg := &types.Config{
		StorageDriver:             "s3",
		StorageBucket:             "fotos",
		PhotoFetchAllowedPrefixes: []string{"https://legado.test/fotos/"},
	}

	blob, err := storage.FromConfig(cfg, aws.Config{Region: "sa-east-1"})
	require.NoError(t, err)

	tests := []struct {
		name string
		blob storage.Blob
		want []string
	}{
		{"with storage", blob, []string{"https://legado.test/fotos/", "https://fotos.s3.sa-east-1.amazonaws.com/"}},
		{"without storage", nil, []string{"https://legado.test/fotos/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, photoFetcher(cfg, tt.blob).Allowed)
		})
	}
}
