// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string

// InitR2 sets up the R2 client for off-site bounty snapshot backups.
// Backups are optional: with R2_BUCKET_NAME unset the client stays nil and
// SnapshotBackupEnabled reports false.
func InitR2() error {
	r2Bucket = os.Getenv("R2_BUCKET_NAME")
	if r2Bucket == "" {
		return nil
	}

	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// SnapshotBackupEnabled reports whether R2 backups are configured.
func SnapshotBackupEnabled() bool {
	return r2Client != nil
}

// UploadSnapshotToR2 uploads a serialized bounty snapshot and returns the
// object key. Keys are timestamped so backups never overwrite each other.
func UploadSnapshotToR2(ctx context.Context, payload []byte) (string, error) {
	if r2Client == nil {
		return "", fmt.Errorf("R2 snapshot backup is not configured")
	}

	key := fmt.Sprintf("snapshots/bounties-%s.json", time.Now().UTC().Format("20060102T150405Z"))

	_, err := r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to R2: %w", err)
	}

	return key, nil
}
