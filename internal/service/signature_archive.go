package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	archivePathPrefix = "signatures"
	archiveURLTTL     = 15 * time.Minute
)

var (
	ErrArchiveBucketFailed = errors.New("failed to create archive bucket")
	ErrArchiveUploadFailed = errors.New("failed to archive signature image")
	ErrArchiveURLFailed    = errors.New("failed to generate archive URL")
)

// SignatureArchive keeps a durable copy of each signed image in object
// storage, outside the session row's lifecycle, so the audit trail survives
// session retention purges.
type SignatureArchive interface {
	// Store uploads the signed image and returns its object key.
	Store(ctx context.Context, userID, sessionRef, signatureBase64 string) (string, error)

	// PresignedURL generates a short-lived GET URL for an archived image.
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// MinIOSignatureArchive implements SignatureArchive on MinIO/S3-compatible
// storage.
type MinIOSignatureArchive struct {
	client     *minio.Client
	bucketName string
}

func NewMinIOSignatureArchive(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOSignatureArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	archive := &MinIOSignatureArchive{client: client, bucketName: bucketName}
	if err := archive.ensureBucketExists(context.Background()); err != nil {
		return nil, err
	}
	return archive, nil
}

func (a *MinIOSignatureArchive) ensureBucketExists(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucketName)
	if err != nil {
		return fmt.Errorf("%w: check bucket existence: %v", ErrArchiveBucketFailed, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("%w: create bucket: %v", ErrArchiveBucketFailed, err)
		}
	}
	return nil
}

func (a *MinIOSignatureArchive) Store(ctx context.Context, userID, sessionRef, signatureBase64 string) (string, error) {
	payload := signatureBase64
	contentType := "image/png"
	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i > 0 {
		// Canvas captures arrive as data URLs; strip the prefix before decode.
		payload = payload[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: decode image: %v", ErrArchiveUploadFailed, err)
	}

	objectKey := fmt.Sprintf("%s/%s/%s.png", archivePathPrefix, userID, sessionRef)
	metadata := map[string]string{
		"User-Id":     userID,
		"Session-Ref": sessionRef,
		"Archived-At": time.Now().UTC().Format(time.RFC3339),
	}

	_, err = a.client.PutObject(ctx, a.bucketName, objectKey, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveUploadFailed, err)
	}
	return objectKey, nil
}

func (a *MinIOSignatureArchive) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("%w: empty object key", ErrArchiveURLFailed)
	}
	presigned, err := a.client.PresignedGetObject(ctx, a.bucketName, objectKey, archiveURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveURLFailed, err)
	}
	return presigned.String(), nil
}
