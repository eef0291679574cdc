package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/siqueiraa/RecipeFlow/pkg/config"
)

// Uploader is satisfied by *manager.Uploader.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Getter is satisfied by *s3.Client.
type Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Archive stores gzip-compressed store backups in an S3 bucket.
type Archive struct {
	uploader Uploader
	getter   Getter
	bucket   string
	prefix   string
}

// NewS3Archive builds an archive with static credentials and path-style
// addressing so S3-compatible endpoints work.
func NewS3Archive(ctx context.Context, s3cfg config.S3Config) (*Archive, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(s3cfg.Region),
		awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKey, s3cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return NewArchive(manager.NewUploader(client), client, s3cfg.Bucket, s3cfg.Prefix), nil
}

func NewArchive(uploader Uploader, getter Getter, bucket, prefix string) *Archive {
	return &Archive{uploader: uploader, getter: getter, bucket: bucket, prefix: prefix}
}

// Key is the object key of a run's archive.
func (a *Archive) Key(runID string) string {
	return fmt.Sprintf("%s%s.badger.gz", a.prefix, runID)
}

// Upload backs up the store and uploads it under the run's key.
func (a *Archive) Upload(ctx context.Context, store *Store, runID string) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := store.Backup(gz); err != nil {
		return "", fmt.Errorf("backing up checkpoint store: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	res, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(runID)),
		Body:   &buf,
	})
	if err != nil {
		return "", fmt.Errorf("uploading checkpoint %s: %w", a.Key(runID), err)
	}
	log.Printf("[Checkpoint] Uploaded to %s", res.Location)
	return res.Location, nil
}

// Download restores a run's archive into store. A missing object is not an
// error; it returns false.
func (a *Archive) Download(ctx context.Context, store *Store, runID string) (bool, error) {
	resp, err := a.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(runID)),
	})
	if err != nil {
		log.Printf("[Checkpoint] No checkpoint found in S3: %v", err)
		return false, nil
	}
	defer resp.Body.Close()

	log.Printf("[Checkpoint] Restoring checkpoint for %s from S3", runID)
	return true, restoreGzip(resp.Body, store)
}

func restoreGzip(r io.Reader, store *Store) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading checkpoint archive: %w", err)
	}
	defer gzr.Close()
	return store.LoadBackup(gzr)
}
