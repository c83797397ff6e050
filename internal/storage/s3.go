package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for an AWS S3 or S3-compatible object store.
type S3Config struct {
	Region string
	// Endpoint is an optional custom endpoint URL for S3-compatible services.
	Endpoint string
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	// PublicBase overrides the base URL used to build object locators.
	PublicBase string
}

// s3PutAPI is the subset of the S3 client used by S3ObjectStore.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ObjectStore implements ObjectStore using the AWS SDK.
type S3ObjectStore struct {
	client     s3PutAPI
	publicBase string
	endpoint   string
}

// NewS3ObjectStore loads AWS configuration from cfg and returns a store.
func NewS3ObjectStore(ctx context.Context, cfg S3Config) (*S3ObjectStore, error) {
	var awsOpts []func(*awsconfig.LoadOptions) error
	awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3ObjectStore(s3.NewFromConfig(awsCfg, s3Opts...), cfg.PublicBase, cfg.Endpoint), nil
}

func newS3ObjectStore(client s3PutAPI, publicBase string, endpoint string) *S3ObjectStore {
	return &S3ObjectStore{
		client:     client,
		publicBase: strings.TrimRight(publicBase, "/"),
		endpoint:   strings.TrimRight(endpoint, "/"),
	}
}

// Put streams the file at localPath to bucket/key.
func (s *S3ObjectStore) Put(ctx context.Context, localPath string, bucket string, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentTypeForKey(key)),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}

	return s.locator(bucket, key), nil
}

// locator builds the object URL: PublicBase/key when configured, otherwise
// path-style on a custom endpoint, otherwise virtual-hosted AWS style.
func (s *S3ObjectStore) locator(bucket string, key string) string {
	switch {
	case s.publicBase != "":
		return s.publicBase + "/" + key
	case s.endpoint != "":
		return s.endpoint + "/" + bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

// ContentTypeForKey guesses a MIME type from the key's extension.
func ContentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
