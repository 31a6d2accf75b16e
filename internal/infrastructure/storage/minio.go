package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/johnquangdev/meeting-transcriber/pkg/config"
)

// SampleArchive keeps raw enrollment audio in a private MinIO bucket
type SampleArchive struct {
	client *minio.Client
	bucket string
}

// NewSampleArchive creates the MinIO client and makes sure the bucket exists
func NewSampleArchive(ctx context.Context, cfg *config.StorageConfig) (*SampleArchive, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	a := &SampleArchive{client: minioClient, bucket: cfg.BucketName}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}
	return a, nil
}

func (a *SampleArchive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// SampleKey is the object name of the index-th sample of a profile
func SampleKey(profileID uuid.UUID, index int) string {
	return fmt.Sprintf("voiceprints/%s/%d.wav", profileID, index)
}

// PutSample uploads one sample and returns its object key
func (a *SampleArchive) PutSample(ctx context.Context, profileID uuid.UUID, index int, audio []byte) (string, error) {
	key := SampleKey(profileID, index)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(audio), int64(len(audio)), minio.PutObjectOptions{
		ContentType: "audio/wav",
		UserMetadata: map[string]string{
			"profile-id": profileID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload sample: %w", err)
	}
	return key, nil
}

// Health checks that the bucket is reachable
func (a *SampleArchive) Health(ctx context.Context) error {
	ok, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if !ok {
		return fmt.Errorf("storage: bucket %s missing", a.bucket)
	}
	return nil
}
