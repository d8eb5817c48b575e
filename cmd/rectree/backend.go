package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/rectree/blobstore"
	"github.com/hupe1980/rectree/blobstore/minio"
	"github.com/hupe1980/rectree/blobstore/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
)

var errNotVersioned = errors.New("backend does not keep versions; use --backend s3 with --table")

type backendFlags struct {
	backend   string
	bucket    string
	prefix    string
	endpoint  string
	region    string
	accessKey string
	secretKey string
	secure    bool
	table     string
	dir       string
	cacheDir  string
}

func (b *backendFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&b.backend, "backend", "local", "blob store backend (local, s3, minio)")
	f.StringVar(&b.dir, "dir", "", "root directory of the local backend")
	f.StringVar(&b.bucket, "bucket", "", "bucket name (s3, minio)")
	f.StringVar(&b.prefix, "prefix", "", "object key prefix (s3, minio)")
	f.StringVar(&b.endpoint, "endpoint", "", "endpoint host:port (minio) or URL (s3)")
	f.StringVar(&b.region, "region", "", "AWS region (s3)")
	f.StringVar(&b.accessKey, "access-key", "", "access key (minio)")
	f.StringVar(&b.secretKey, "secret-key", "", "secret key (minio)")
	f.BoolVar(&b.secure, "secure", true, "use TLS (minio)")
	f.StringVar(&b.table, "table", "", "DynamoDB table for versioned commits (s3)")
	f.StringVar(&b.cacheDir, "cache-dir", "", "cache remote objects in this local directory")
}

// open builds the configured store.
func (b *backendFlags) open(ctx context.Context) (blobstore.Store, error) {
	store, err := b.openRemote(ctx)
	if err != nil {
		return nil, err
	}
	if b.cacheDir != "" && b.backend != "local" {
		if _, ok := store.(blobstore.Committer); !ok {
			return blobstore.NewCachingStore(store, blobstore.NewLocalStore(b.cacheDir)), nil
		}
	}
	return store, nil
}

func (b *backendFlags) openRemote(ctx context.Context) (blobstore.Store, error) {
	switch b.backend {
	case "local":
		if b.dir == "" {
			return nil, errors.New("--dir is required for the local backend")
		}
		return blobstore.NewLocalStore(b.dir), nil

	case "s3":
		if b.bucket == "" {
			return nil, errors.New("--bucket is required for the s3 backend")
		}
		var optFns []func(*awsconfig.LoadOptions) error
		if b.region != "" {
			optFns = append(optFns, awsconfig.WithRegion(b.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
			if b.endpoint != "" {
				o.BaseEndpoint = aws.String(b.endpoint)
				o.UsePathStyle = true
			}
		})
		store := s3.NewStore(client, b.bucket, b.prefix)
		if b.table == "" {
			return store, nil
		}
		baseURI := "s3://" + b.bucket + "/" + b.prefix
		return s3.NewCommitStore(store, dynamodb.NewFromConfig(cfg), b.table, baseURI), nil

	case "minio":
		if b.bucket == "" || b.endpoint == "" {
			return nil, errors.New("--bucket and --endpoint are required for the minio backend")
		}
		client, err := miniogo.New(b.endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(b.accessKey, b.secretKey, ""),
			Secure: b.secure,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minio.NewStore(client, b.bucket, b.prefix), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", b.backend)
	}
}
