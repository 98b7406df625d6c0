package s3

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const exportPrefix = "exports"

type ItfS3 interface {
	UploadExport(ctx context.Context, name string, contentType string, body []byte) (string, error)
	PresignURL(key string, ttl time.Duration) (string, error)
}

type s3Client struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	bucketName string
}

func New() (ItfS3, error) {
	sess, err := newSession()
	if err != nil {
		return nil, err
	}

	return &s3Client{
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		bucketName: os.Getenv("AWS_BUCKET_NAME"),
	}, nil
}

// UploadExport stores body under exports/<date>/<name> and returns the object key.
func (s *s3Client) UploadExport(ctx context.Context, name string, contentType string, body []byte) (string, error) {
	key := ExportKey(time.Now(), name)

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return key, nil
}

func (s *s3Client) PresignURL(key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})

	urlStr, err := req.Presign(ttl)
	if err != nil {
		return "", err
	}

	return urlStr, nil
}

func ExportKey(t time.Time, name string) string {
	return path.Join(exportPrefix, t.UTC().Format("2006-01-02"), fmt.Sprintf("%d-%s", t.Unix(), path.Base(name)))
}

func newSession() (*session.Session, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
		Credentials: credentials.NewStaticCredentials(
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
			"",
		),
	})

	if err != nil {
		return nil, err
	}

	return sess, nil
}
