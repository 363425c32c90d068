// Package storage uploads message attachments to S3-compatible blob storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

type Config struct {
	Region     string
	Bucket     string
	Endpoint   string // MinIO or other S3-compatible endpoint
	PublicRead bool
	PresignTTL time.Duration
	KeyPrefix  string
}

type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      Config
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 24 * time.Hour
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
	}, nil
}

// Upload stores body and returns the attachment a message can reference.
// Private buckets yield a presigned URL; its query string changes on every
// signing, so clients compare attachment URLs without it.
func (s *S3Store) Upload(ctx context.Context, filename, contentType string, body io.Reader) (domain.Attachment, error) {
	name := SanitizeName(filename)
	key := s.objectKey(name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("upload %s: %w", key, err)
	}
	u, err := s.url(ctx, key)
	if err != nil {
		return domain.Attachment{}, err
	}
	return domain.Attachment{URL: u, Name: name, Kind: KindOf(contentType)}, nil
}

func (s *S3Store) objectKey(name string) string {
	return path.Join(s.cfg.KeyPrefix, "attachments", uuid.NewString(), name)
}

func (s *S3Store) url(ctx context.Context, key string) (string, error) {
	if s.cfg.PublicRead {
		escaped := (&url.URL{Path: key}).EscapedPath()
		if s.cfg.Endpoint != "" {
			return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + escaped, nil
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escaped), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// KindOf classifies a MIME type into an attachment kind.
func KindOf(contentType string) domain.AttachmentKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return domain.AttachmentImage
	case strings.HasPrefix(ct, "video/"):
		return domain.AttachmentVideo
	}
	return domain.AttachmentFile
}

// SanitizeName keeps the base name and replaces characters that are awkward in object keys.
func SanitizeName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "file"
	}
	return name
}
