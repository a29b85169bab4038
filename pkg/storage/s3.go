package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const (
	// MaxSourceFileSize caps server-side source uploads (5GB).
	MaxSourceFileSize = 5 << 30
	// FolderSources is the S3 prefix for raw lecture uploads awaiting provider import.
	FolderSources = "sources"
)

// Allowed source MIME types and extensions.
var (
	AllowedSourceTypes = map[string]string{
		"video/mp4":        ".mp4",
		"video/quicktime":  ".mov",
		"video/webm":       ".webm",
		"video/x-matroska": ".mkv",
		"video/x-msvideo":  ".avi",
	}
	AllowedSourceExtensions = map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
		".mkv":  "video/x-matroska",
		".avi":  "video/x-msvideo",
	}
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	SourceBucket         string
	PresignExpireMinutes int
}

// S3 stages lecture sources in a private bucket and hands out pre-signed URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("source_bucket", cfg.SourceBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ValidateSourceType reports whether the content type or extension is an accepted video container.
func ValidateSourceType(contentType, filename string) bool {
	if contentType != "" {
		if _, ok := AllowedSourceTypes[strings.ToLower(contentType)]; ok {
			return true
		}
	}
	_, ok := AllowedSourceExtensions[strings.ToLower(path.Ext(filename))]
	return ok
}

// ContentTypeForFilename returns the MIME type for a source filename extension.
func ContentTypeForFilename(filename string) string {
	if ct, ok := AllowedSourceExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ExtensionFor picks the object extension: the filename's when allowed, else the content type's.
func ExtensionFor(contentType, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := AllowedSourceExtensions[ext]; ok {
		return ext
	}
	if ext, ok := AllowedSourceTypes[strings.ToLower(contentType)]; ok {
		return ext
	}
	return ".mp4"
}

// SourceKey returns sources/{course_id}/{lesson_id}/{object_id}{ext}.
func SourceKey(courseID, lessonID, objectID, ext string) string {
	return path.Join(FolderSources, courseID, path.Base(lessonID), objectID+ext)
}

// IsSourceKey reports whether key lives under the sources prefix of courseID.
func IsSourceKey(courseID, key string) bool {
	clean := path.Clean("/" + key)
	return strings.HasPrefix(clean, "/"+path.Join(FolderSources, courseID)+"/")
}

// PresignUpload returns a pre-signed PUT URL for a direct browser upload of a source.
func (s *S3) PresignUpload(ctx context.Context, key, contentType string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.SourceBucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

// PresignDownload returns a pre-signed GET URL the provider can ingest from.
func (s *S3) PresignDownload(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.SourceBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// SourceBucket returns the staging bucket name.
func (s *S3) SourceBucket() string { return s.cfg.SourceBucket }

// Upload streams a source to the staging bucket. Objects stay private.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.SourceBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// Exists reports whether a source object has been uploaded.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.SourceBucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("head object: %w", err)
}

// Delete removes a staged source.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.SourceBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	s.logger.Debug("source deleted", zap.String("key", key))
	return nil
}
