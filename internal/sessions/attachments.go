package sessions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by AttachmentStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// AttachmentStore keeps session attachments in S3. If bucket is empty, all
// operations are no-ops and Enabled reports false.
type AttachmentStore struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

func NewAttachmentStore(s3Client S3API, bucket string, logger *logging.Logger) *AttachmentStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &AttachmentStore{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled reports whether attachment storage is configured.
func (s *AttachmentStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Put stores one attachment under the session's prefix and returns its key.
// The original filename survives as the key's basename.
func (s *AttachmentStore) Put(ctx context.Context, sessionID, filename, contentType string, body []byte) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("sessions: attachment storage not configured")
	}
	key := fmt.Sprintf("sessions/%s/%s-%s", sessionID, uuid.NewString()[:8], sanitizeFilename(filename))
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("sessions: s3 put %s: %w", key, err)
	}
	s.logger.Info("stored session attachment", "session_id", sessionID, "s3_key", key, "bytes", len(body))
	return key, nil
}

// Get streams one attachment back. The caller closes the reader.
func (s *AttachmentStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !s.Enabled() {
		return nil, "", ErrAttachmentNotFound
	}
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("sessions: s3 get %s: %w", key, err)
	}
	contentType := "application/octet-stream"
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return out.Body, contentType, nil
}

// Delete removes one attachment.
func (s *AttachmentStore) Delete(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("sessions: s3 delete %s: %w", key, err)
	}
	return nil
}

// sanitizeFilename strips directory components and characters that do not
// belong in an object key.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." {
		return "attachment"
	}
	return name
}
