package utils

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Putter is the slice of the S3 client the archive needs.
type S3Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PhotoArchive keeps a durable copy of meal photos before the local upload is removed.
type PhotoArchive struct {
	client    S3Putter
	bucket    string
	publicURL string
	prefix    string
}

// NewS3PhotoArchive loads the default AWS config for region.
func NewS3PhotoArchive(ctx context.Context, region, bucket, publicURL string) (*PhotoArchive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config for S3: %w", err)
	}
	return NewPhotoArchive(s3.NewFromConfig(cfg), bucket, publicURL), nil
}

func NewPhotoArchive(client S3Putter, bucket, publicURL string) *PhotoArchive {
	return &PhotoArchive{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		prefix:    "meal-photos",
	}
}

// Archive uploads the file at localPath and returns its public URL.
func (a *PhotoArchive) Archive(ctx context.Context, userID, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	key := path.Join(a.prefix, userID, fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102"), filepath.Base(localPath)))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	if a.publicURL == "" {
		return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
	}
	return fmt.Sprintf("%s/%s", a.publicURL, key), nil
}
