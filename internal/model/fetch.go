package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-logr/logr"

	"github.com/Brownie44l1/neuroinsight-api/internal/config"
	apierr "github.com/Brownie44l1/neuroinsight-api/internal/errors"
)

// FetchArtifact downloads the model artifact from object storage to dest.
// The file is written next to dest and renamed, so a failed download never
// leaves a partial artifact behind.
func FetchArtifact(ctx context.Context, options *config.S3Options, dest string) error {
	log := logr.FromContextOrDiscard(ctx)

	client, err := newS3Client(ctx, options)
	if err != nil {
		return apierr.NewStartupError("failed to configure s3 client", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apierr.NewStartupError("failed to create model directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".model-*")
	if err != nil {
		return apierr.NewStartupError("failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	log.Info("fetching model artifact", "bucket", options.Bucket, "key", options.Key, "dest", dest)
	n, err := manager.NewDownloader(client).Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(options.Bucket),
		Key:    aws.String(options.Key),
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return apierr.NewStartupError(fmt.Sprintf("failed to download s3://%s/%s", options.Bucket, options.Key), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return apierr.NewStartupError("failed to move model artifact", err)
	}
	log.Info("model artifact fetched", "bytes", n)
	return nil
}

func newS3Client(ctx context.Context, options *config.S3Options) (*s3.Client, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{}
	if options.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(options.Region))
	}
	if options.AccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKey, options.SecretKey, ""),
		))
	}
	if options.URL != "" {
		loadOptions = append(loadOptions, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: options.URL}, nil
				},
			),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = options.PathStyle
	}), nil
}
