package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/postpilot/publisher/configs"
)

// StorageService fronts the R2 bucket that holds user media. The batch
// processor uses it to confirm a bucket-hosted media object still exists
// before spending a publish attempt on it.
type StorageService struct {
	config cfg.Config
	client *s3.Client
}

func NewStorageService(config cfg.Config) *StorageService {
	return &StorageService{config: config}
}

func (s *StorageService) r2Client() (*s3.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.config.R2.AccessKey, s.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.config.R2.AccountID))
	})
	return s.client, nil
}

// VerifyMediaURL HEAD-checks media that lives in our own bucket. URLs hosted
// elsewhere pass through; verification is best effort and only a definite
// "object missing" answer returns false.
func (s *StorageService) VerifyMediaURL(ctx context.Context, mediaURL string) bool {
	key, ok := s.bucketKey(mediaURL)
	if !ok {
		return true
	}

	client, err := s.r2Client()
	if err != nil {
		return true
	}

	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.R2.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Warn("media object not found in bucket", "key", key, "error", err)
		return false
	}
	return true
}

func (s *StorageService) bucketKey(mediaURL string) (string, bool) {
	if s.config.R2.AccountID == "" || s.config.R2.BucketName == "" {
		return "", false
	}
	prefix := fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s/", s.config.R2.AccountID, s.config.R2.BucketName)
	if !strings.HasPrefix(mediaURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(mediaURL, prefix), true
}
