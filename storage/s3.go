package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/kcbuddy/kcbuddy/config"
)

// ErrS3NotConfigured is returned when presigning is requested without a bucket.
var ErrS3NotConfigured = errors.New("s3 is not configured")

// PresignedUpload is what a kid needs to PUT a photo straight to the bucket.
type PresignedUpload struct {
	UploadURL string  `json:"uploadUrl"`
	PublicURL *string `json:"publicUrl"`
	Key       string  `json:"key"`
}

// Presigner issues direct-to-bucket upload URLs.
type Presigner interface {
	PresignPut(ctx context.Context, familyID, kidID uint, contentType string) (PresignedUpload, error)
}

type putPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Presigner presigns PutObject requests for the configured bucket.
type S3Presigner struct {
	client     putPresigner
	bucket     string
	publicBase string
	ttl        time.Duration
}

// NewS3Presigner uses static credentials when both keys are set and the default
// AWS chain otherwise. A custom endpoint switches to path-style addressing.
func NewS3Presigner(ctx context.Context, cfg *config.AppConfig) (*S3Presigner, error) {
	if !cfg.S3Enabled() {
		return nil, ErrS3NotConfigured
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	ttl := cfg.S3PresignTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &S3Presigner{
		client:     s3.NewPresignClient(client),
		bucket:     cfg.S3Bucket,
		publicBase: strings.TrimRight(cfg.S3PublicBaseURL, "/"),
		ttl:        ttl,
	}, nil
}

func (p *S3Presigner) PresignPut(ctx context.Context, familyID, kidID uint, contentType string) (PresignedUpload, error) {
	key := fmt.Sprintf("families/%d/kids/%d/%s", familyID, kidID, uuid.NewString())
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("presign put %s: %w", key, err)
	}
	out := PresignedUpload{UploadURL: req.URL, Key: key}
	if p.publicBase != "" {
		public := p.publicBase + "/" + key
		out.PublicURL = &public
	}
	return out, nil
}
