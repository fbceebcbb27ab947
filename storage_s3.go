package flatdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is the subset of *s3.Client used by S3Adapter.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configure an S3Adapter.
type S3Options struct {
	Bucket string
	Prefix string

	// Format of the stored objects.
	Format Format
	Secret string
	Legacy bool
}

// S3Adapter stores each collection as one object, named like the files of
// FileAdapter and holding the same bytes.
type S3Adapter struct {
	client S3Client
	opt    S3Options
}

func NewS3Adapter(client S3Client, opt S3Options) *S3Adapter {
	return &S3Adapter{client: client, opt: opt}
}

// OpenS3 builds a client from the default AWS configuration chain
// (environment, shared config files, instance roles).
func OpenS3(ctx context.Context, opt S3Options) (*S3Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return NewS3Adapter(s3.NewFromConfig(cfg), opt), nil
}

// ParseS3URL splits "s3://bucket/prefix" into bucket and prefix.
func ParseS3URL(s string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(s, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}

func (a *S3Adapter) key(name string) string {
	return path.Join(a.opt.Prefix, name+a.opt.Format.Ext())
}

func (a *S3Adapter) Load(ctx context.Context, name string) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.opt.Bucket),
		Key:    aws.String(a.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return Collection{}, nil
		}
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return Collection{}, nil
		}
		return nil, adapterErrf("s3", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adapterErrf("s3", name, err)
	}
	coll, err := decodeFile(data, a.opt.Format, a.opt.Secret)
	if err != nil {
		return nil, adapterErrf("s3", name, err)
	}
	return coll, nil
}

func (a *S3Adapter) Persist(ctx context.Context, name string, coll Collection) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := encodeFile(coll, a.opt.Format, a.opt.Secret, a.opt.Legacy)
	if err != nil {
		return adapterErrf("s3", name, err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.opt.Bucket),
		Key:           aws.String(a.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return adapterErrf("s3", name, err)
	}
	return nil
}

func (a *S3Adapter) List(ctx context.Context) ([]string, error) {
	prefix := a.opt.Prefix
	if prefix != "" {
		prefix += "/"
	}
	var names []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.opt.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(rel, "/") {
				continue
			}
			if name, f, ok := SplitFileName(rel); ok && f == a.opt.Format {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

func (a *S3Adapter) Close() error {
	return nil
}
