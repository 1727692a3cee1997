package providers

import (
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// FileStore persists uploaded media and returns a public URL
type FileStore interface {
	Upload(key, contentType string, body io.Reader) (string, error)
}

// S3Store stores company logos and user avatars in an S3 bucket
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Store creates a store backed by the given bucket
func NewS3Store(region, bucket string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
	}, nil
}

// Upload stores the object and returns its location
func (s *S3Store) Upload(key, contentType string, body io.Reader) (string, error) {
	result, err := s.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return result.Location, nil
}
