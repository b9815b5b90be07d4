package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type S3Storage struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Storage uses the default credential chain from awsConfig. When
// publicBaseURL is empty the virtual-hosted bucket URL is used.
func NewS3Storage(awsConfig aws.Config, bucket, publicBaseURL string) *S3Storage {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, awsConfig.Region)
	}

	return &S3Storage{
		client:  s3.NewFromConfig(awsConfig),
		bucket:  bucket,
		baseURL: publicBaseURL,
	}
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", classifyS3Error(err)
	}

	return s.PublicURL(key), nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3Error(err)
	}
	return nil
}

func (s *S3Storage) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.ErrorMessage())
		case "EntityTooLarge":
			return fmt.Errorf("%w: %s", ErrTooLarge, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("s3 request failed: %w", err)
}
