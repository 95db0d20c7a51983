package songs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"
)

var errMissingCredentials = errors.New("songs: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")

// Store persists song files under their id.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
}

// DiskStore writes every song into each of its directories, creating them on
// demand. The first directory is the source tree, later ones are build
// output that should serve the song without a rebuild.
type DiskStore struct {
	dirs []string
}

// NewDiskStore creates a store over dirs.
func NewDiskStore(dirs ...string) *DiskStore {
	return &DiskStore{dirs: dirs}
}

// Put writes data to <dir>/<name> in every directory, in order. It stops at
// the first failure.
func (s *DiskStore) Put(_ context.Context, name string, data []byte) error {
	for _, dir := range s.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("songs: create %s: %w", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("songs: write %s: %w", name, err)
		}
	}
	return nil
}

// PutObjectAPI is the subset of the S3 client used by S3Store.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store mirrors songs to a bucket.
type S3Store struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Store creates a store writing to bucket with keys prefix+name.
func NewS3Store(client PutObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// NewS3Client builds an S3 client for region using credentials from the
// standard AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN
// variables.
func NewS3Client(region string) *s3.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, errMissingCredentials
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})
	return s3.New(s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	})
}

// Put uploads data as an audio/midi object.
func (s *S3Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("audio/midi"),
		Metadata: map[string]string{
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("songs: s3 upload failed: %w", err)
	}
	return nil
}

// MultiStore writes to every store and reports all failures together.
type MultiStore []Store

func (m MultiStore) Put(ctx context.Context, name string, data []byte) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Put(ctx, name, data))
	}
	return err
}
