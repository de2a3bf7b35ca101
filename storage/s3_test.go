package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcbuddy/kcbuddy/config"
)

type fakePutPresigner struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakePutPresigner) PresignPutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.example/" + aws.ToString(params.Key) + "?sig=1", Method: "PUT"}, nil
}

func TestS3PresignerBuildsKeyAndPublicURL(t *testing.T) {
	fake := &fakePutPresigner{}
	p := &S3Presigner{client: fake, bucket: "photos", publicBase: "https://cdn.example", ttl: 5 * time.Minute}

	out, err := p.PresignPut(context.Background(), 4, 11, "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Key, "families/4/kids/11/"))
	assert.Equal(t, out.Key, aws.ToString(fake.input.Key))
	assert.Equal(t, "photos", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(fake.input.ContentType))
	require.NotNil(t, out.PublicURL)
	assert.Equal(t, "https://cdn.example/"+out.Key, *out.PublicURL)
	assert.True(t, PhotoURLAllowed(*out.PublicURL, "https://cdn.example"))
}

func TestS3PresignerWithoutPublicBase(t *testing.T) {
	p := &S3Presigner{client: &fakePutPresigner{}, bucket: "photos", ttl: time.Minute}
	out, err := p.PresignPut(context.Background(), 1, 2, "image/jpeg")
	require.NoError(t, err)
	assert.Nil(t, out.PublicURL)
}

func TestS3PresignerPropagatesErrors(t *testing.T) {
	p := &S3Presigner{client: &fakePutPresigner{err: errors.New("boom")}, bucket: "photos", ttl: time.Minute}
	_, err := p.PresignPut(context.Background(), 1, 2, "image/jpeg")
	assert.Error(t, err)
}

func TestNewS3PresignerSignsOffline(t *testing.T) {
	_, err := NewS3Presigner(context.Background(), &config.AppConfig{})
	assert.ErrorIs(t, err, ErrS3NotConfigured)

	p, err := NewS3Presigner(context.Background(), &config.AppConfig{
		S3Region:          "us-east-1",
		S3Bucket:          "photos",
		S3AccessKeyID:     "AKIAEXAMPLE",
		S3SecretAccessKey: "secret",
		S3Endpoint:        "http://127.0.0.1:9000",
		S3PresignTTL:      5 * time.Minute,
	})
	require.NoError(t, err)

	out, err := p.PresignPut(context.Background(), 1, 2, "image/webp")
	require.NoError(t, err)
	u, err := url.Parse(out.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/photos/"+out.Key, u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
}
