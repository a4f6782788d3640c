package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fitundfun/ffbackup/internal/config"
)

// deleteBatch is the DeleteObjects limit per request.
const deleteBatch = 1000

// S3 talks to the platform's storage through its S3-compatible endpoint.
type S3 struct {
	client *s3.Client
}

func NewS3(cfg config.BlobS3) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = "local"
	}
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = region
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		},
	}
	if cfg.AccessKey != "" {
		opts = append(opts, func(o *s3.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)
		})
	}
	return NewS3FromClient(s3.New(s3.Options{}, opts...)), nil
}

func NewS3FromClient(client *s3.Client) *S3 {
	return &S3{client: client}
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	return err
}

// List returns the direct children of prefix. Common prefixes come back as
// directory entries.
func (s *S3) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	keyPrefix := ""
	if prefix != "" {
		keyPrefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(keyPrefix),
		Delimiter: aws.String("/"),
	}

	var entries []Entry
	pager := s3.NewListObjectsV2Paginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), keyPrefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, Entry{Name: name})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), keyPrefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			id := strings.Trim(aws.ToString(obj.ETag), `"`)
			if id == "" {
				id = name
			}
			entries = append(entries, Entry{Name: name, ID: id, Size: aws.ToInt64(obj.Size)})
		}
	}
	return entries, nil
}

func (s *S3) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Upload writes one object. Without overwrite the write is conditional and
// an existing object yields ErrExists.
func (s *S3) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if !overwrite {
		input.IfNoneMatch = aws.String("*")
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return fmt.Errorf("%s/%s: %w", bucket, path, ErrExists)
		}
		return err
	}
	return nil
}

func (s *S3) Remove(ctx context.Context, bucket string, paths []string) error {
	for start := 0; start < len(paths); start += deleteBatch {
		end := start + deleteBatch
		if end > len(paths) {
			end = len(paths)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, p := range paths[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(p)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("remove %s: %s", aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}
