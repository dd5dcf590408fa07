package blobstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"graphrag/internal/config"
)

// S3Store implements Store atop AWS S3 or an S3-compatible service (MinIO).
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	sse    config.S3SSEConfig
}

// NewS3 connects an S3Store from cfg. Static credentials, a custom endpoint
// and path-style addressing are all optional; leaving them unset uses the
// ambient AWS credential chain against real S3.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob bucket is required")
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.TLSInsecureSkipVerify {
		awsOpts = append(awsOpts, awsconfig.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
		sse:    cfg.SSE,
	}, nil
}

// key maps a document id to its object key under the configured prefix.
func (s *S3Store) key(docID string) string {
	if s.prefix == "" {
		return "documents/" + docID
	}
	return s.prefix + "/documents/" + docID
}

func (s *S3Store) docID(objectKey string) string {
	trimmed := objectKey
	if s.prefix != "" {
		trimmed = strings.TrimPrefix(trimmed, s.prefix+"/")
	}
	return strings.TrimPrefix(trimmed, "documents/")
}

// Put archives data under docID.
func (s *S3Store) Put(ctx context.Context, docID, contentType string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(docID)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	switch s.sse.Mode {
	case "sse-s3":
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	case "sse-kms":
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		if s.sse.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(s.sse.KMSKeyID)
		}
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("archive document %s: %w", docID, err)
	}
	return nil
}

// Get returns the archived bytes for docID.
func (s *S3Store) Get(ctx context.Context, docID string) ([]byte, Meta, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(docID)),
	})
	if err != nil {
		if isMissingObject(err) {
			return nil, Meta{}, ErrNotFound
		}
		return nil, Meta{}, fmt.Errorf("read archived document %s: %w", docID, err)
	}
	defer out.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, Meta{}, fmt.Errorf("read archived document %s: %w", docID, err)
	}
	return buf.Bytes(), Meta{
		DocID:       docID,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Delete removes docID's archived content; absent ids are not an error.
func (s *S3Store) Delete(ctx context.Context, docID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(docID)),
	})
	if err != nil && !isMissingObject(err) {
		return fmt.Errorf("delete archived document %s: %w", docID, err)
	}
	return nil
}

// Exists reports whether content is archived under docID.
func (s *S3Store) Exists(ctx context.Context, docID string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(docID)),
	})
	if err != nil {
		if isMissingObject(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List enumerates archived documents, following continuation tokens until
// the bucket prefix is exhausted.
func (s *S3Store) List(ctx context.Context) ([]Meta, error) {
	prefix := "documents/"
	if s.prefix != "" {
		prefix = s.prefix + "/documents/"
	}
	var out []Meta
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list archived documents: %w", err)
		}
		for _, obj := range page.Contents {
			out = append(out, Meta{
				DocID: s.docID(aws.ToString(obj.Key)),
				Size:  aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(page.IsTruncated) {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

func isMissingObject(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey) ||
		strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}

var _ Store = (*S3Store)(nil)
