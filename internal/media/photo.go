// Package media uploads profile photos to object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"techtribe-client/internal/config"
	"techtribe-client/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxPhotoSize bounds uploads to what the backend accepts as a profile photo
const maxPhotoSize = 8 << 20

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ProfileEditor applies profile changes on the backend
type ProfileEditor interface {
	EditProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error)
}

// PhotoUploader stores photos in S3 and points the profile at them
type PhotoUploader struct {
	client    objectPutter
	bucket    string
	publicURL string
	profiles  ProfileEditor
}

// NewPhotoUploader creates an uploader from media configuration
func NewPhotoUploader(ctx context.Context, cfg config.MediaConfig, profiles ProfileEditor) (*PhotoUploader, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("media.s3_bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.Region)
	}

	return &PhotoUploader{
		client:    client,
		bucket:    cfg.S3Bucket,
		publicURL: publicURL,
		profiles:  profiles,
	}, nil
}

// Upload stores the photo under the user's prefix and sets it as the profile photo
func (u *PhotoUploader) Upload(ctx context.Context, userID, filename string, body io.Reader, size int64) (*models.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if size <= 0 || size > maxPhotoSize {
		return nil, fmt.Errorf("photo must be between 1 byte and %d bytes", maxPhotoSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType := mime.TypeByExtension(ext)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("unsupported photo type %q", ext)
	}

	key := fmt.Sprintf("profiles/%s/%s%s", userID, uuid.New().String(), ext)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}

	photoURL := u.publicURL + "/" + key
	log.Info().Str("user_id", userID).Str("key", key).Msg("Profile photo uploaded")

	user, err := u.profiles.EditProfile(ctx, models.ProfileUpdate{ProfilePhotoURL: &photoURL})
	if err != nil {
		return nil, fmt.Errorf("failed to set profile photo: %w", err)
	}
	return user, nil
}

// UploadFile uploads the photo at path
func (u *PhotoUploader) UploadFile(ctx context.Context, userID, path string) (*models.User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat photo: %w", err)
	}
	return u.Upload(ctx, userID, filepath.Base(path), f, info.Size())
}
