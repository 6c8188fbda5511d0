package layer

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
)

// S3Layer stores blobs in an S3 compatible bucket keyed by the SHA-256
// hex of the blob.
type S3Layer struct {
	client *s3.Client
	bucket string
	mime   string
}

// NewS3Layer builds a layer for the given region, shared-config
// profile and bucket.
func NewS3Layer(ctx context.Context, region, profile, bucket, mime string) (*S3Layer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, xerrors.Errorf("loading aws config: %w", err)
	}
	return &S3Layer{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		mime:   mime,
	}, nil
}

func (l *S3Layer) Put(ctx context.Context, data []byte) (string, error) {
	key := ChecksumKey(data)
	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(l.mime),
	})
	if err != nil {
		return "", xerrors.Errorf("putting object %s: %w", key, err)
	}
	log.Debugw("stored blob", "layer", "s3", "bucket", l.bucket, "key", key, "size", len(data))
	return key, nil
}

func (l *S3Layer) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, core.ErrNotFound
		}
		return nil, xerrors.Errorf("getting object %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, xerrors.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

func (l *S3Layer) Has(ctx context.Context, key string) (bool, error) {
	_, err := l.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, xerrors.Errorf("heading object %s: %w", key, err)
	}
	return true, nil
}
