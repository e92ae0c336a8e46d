package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

type S3Args struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string

	// Endpoint overrides the default AWS endpoint, e.g. for minio.
	Endpoint string
}

func NewS3ObjectStore(ctx context.Context, args S3Args) (*S3ObjectStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(args.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			args.AccessKey, args.SecretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if args.Endpoint != "" {
			o.BaseEndpoint = aws.String(args.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("creating new s3 object store", "bucket", args.Bucket, "region", args.Region)

	return &S3ObjectStore{client: client, presign: s3.NewPresignClient(client), bucket: args.Bucket}, nil
}

func (s *S3ObjectStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 data,
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		slog.Error("error uploading object", "key", key, "error", err)
		return fmt.Errorf("error uploading object %v: %w", key, err)
	}
	return nil
}

func (s *S3ObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("error opening object for read", "key", key, "error", err)
		return nil, fmt.Errorf("error reading object %v: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("error deleting object", "key", key, "error", err)
		return fmt.Errorf("error deleting object %v: %w", key, err)
	}
	return nil
}

func (s *S3ObjectStore) List(ctx context.Context, prefix, continuationToken string) (ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		slog.Error("error listing objects", "prefix", prefix, "error", err)
		return ListPage{}, fmt.Errorf("error listing objects under %v: %w", prefix, err)
	}

	page := ListPage{Objects: make([]Object, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
	}
	if aws.ToBool(out.IsTruncated) {
		page.IsTruncated = true
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	return page, nil
}

func (s *S3ObjectStore) SignedUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		slog.Error("error presigning object url", "key", key, "error", err)
		return "", fmt.Errorf("error presigning url for %v: %w", key, err)
	}
	return req.URL, nil
}
