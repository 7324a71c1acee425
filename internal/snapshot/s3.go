package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Config locates the bucket that stores index snapshots.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store uploads and restores the index artifacts under a key prefix.
type S3Store struct {
	client objectAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("snapshot bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newStore(client, cfg.Bucket, cfg.Prefix), nil
}

func newStore(client objectAPI, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) key(file string) string {
	if s.prefix == "" {
		return filepath.Base(file)
	}
	return path.Join(s.prefix, filepath.Base(file))
}

// Publish uploads the metadata file and then the vector file.
func (s *S3Store) Publish(ctx context.Context, indexPath, metaPath string) error {
	for _, p := range []string{metaPath, indexPath} {
		if err := s.upload(ctx, p); err != nil {
			return err
		}
	}
	logutil.GetLogger(ctx).Info("index snapshot published",
		zap.String("bucket", s.bucket), zap.String("prefix", s.prefix))
	return nil
}

func (s *S3Store) upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(file)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", s.key(file), err)
	}
	return nil
}

// Restore downloads both artifacts. It reports false when either object is missing,
// in which case no local file is touched.
func (s *S3Store) Restore(ctx context.Context, indexPath, metaPath string) (bool, error) {
	var tmps []string
	defer func() {
		for _, t := range tmps {
			_ = os.Remove(t)
		}
	}()
	targets := []string{indexPath, metaPath}
	for _, p := range targets {
		tmp, ok, err := s.download(ctx, p)
		if err != nil || !ok {
			return false, err
		}
		tmps = append(tmps, tmp)
	}
	for i, p := range targets {
		if err := os.Rename(tmps[i], p); err != nil {
			return false, err
		}
	}
	tmps = nil
	logutil.GetLogger(ctx).Info("index snapshot restored",
		zap.String("bucket", s.bucket), zap.String("prefix", s.prefix))
	return true, nil
}

func (s *S3Store) download(ctx context.Context, file string) (string, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(file)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("download %s: %w", s.key(file), err)
	}
	defer out.Body.Close()
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".restore-*")
	if err != nil {
		return "", false, err
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", false, err
	}
	return tmp.Name(), true, nil
}
