package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures the object storage uploader. Any S3-compatible
// endpoint works.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// S3Uploader implements Uploader against an S3-compatible object store.
type S3Uploader struct {
	client *minio.Client
	bucket string
}

func NewS3Uploader(opts S3Options) (*S3Uploader, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("artifact: s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: configure s3 client: %w", err)
	}
	return &S3Uploader{client: client, bucket: opts.Bucket}, nil
}

// Upload puts the local file at key and returns its object URL.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string, public bool) (string, error) {
	key = strings.TrimLeft(key, "/")
	putOpts := minio.PutObjectOptions{ContentType: "image/png"}
	if public {
		putOpts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}
	if _, err := u.client.FPutObject(ctx, u.bucket, key, localPath, putOpts); err != nil {
		return "", err
	}
	endpoint := u.client.EndpointURL()
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), u.bucket, key), nil
}

var _ Uploader = (*S3Uploader)(nil)
