// Package objectstore keeps a copy of ingested audio in an S3-compatible
// bucket through the MinIO client.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/taskconvertai/taskconvert-api/internal/config"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// audioPrefix is the key prefix of every archived recording.
const audioPrefix = "audio/"

// partSize bounds the memory used by an upload of unknown length.
const partSize = 16 << 20

// ErrNilClient is returned when NewArchive gets no client.
var ErrNilClient = errors.New("object storage client cannot be nil")

// objectAPI is the subset of *minio.Client the archive uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(
		ctx context.Context,
		bucketName, objectName string,
		reader io.Reader,
		objectSize int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Archive stores recordings under audio/<job id>/<file name>.
type Archive struct {
	client objectAPI
	bucket string
	logger *slog.Logger
}

var _ task.Archiver = (*Archive)(nil)

// New connects to the bucket described by cfg.
func New(cfg config.ArchiveConfig, logger *slog.Logger) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return NewArchive(client, cfg.Bucket, logger)
}

// NewArchive wraps an existing client.
func NewArchive(client objectAPI, bucket string, logger *slog.Logger) (*Archive, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "audio_archive", "bucket", bucket),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	a.logger.InfoContext(ctx, "created archive bucket")
	return nil
}

// ObjectKey returns the key a recording of jobID is stored under.
func ObjectKey(jobID, name string) string {
	base := path.Base("/" + name)
	if base == "/" {
		base = "audio.bin"
	}
	return audioPrefix + jobID + "/" + base
}

// PutAudio uploads the recording of jobID.
func (a *Archive) PutAudio(ctx context.Context, jobID string, audio task.AudioSource) error {
	src, err := audio.Open()
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}
	defer func() { _ = src.Close() }()

	key := ObjectKey(jobID, audio.Name())
	info, err := a.client.PutObject(ctx, a.bucket, key, src, -1, minio.PutObjectOptions{
		ContentType:  audio.ContentType(),
		PartSize:     partSize,
		UserMetadata: map[string]string{"job-id": jobID},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	a.logger.DebugContext(ctx, "archived audio", "key", key, "size", info.Size)
	return nil
}

// PruneOlderThan removes archived recordings last modified at or before
// cutoff and returns how many were removed. Removal continues past
// individual failures; the first one is returned.
func (a *Archive) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var removed int
	var firstErr error

	for obj := range a.client.ListObjects(listCtx, a.bucket, minio.ListObjectsOptions{
		Prefix:    audioPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("failed to list archive: %w", obj.Err)
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			a.logger.WarnContext(ctx, "failed to remove archived audio", "key", obj.Key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	return removed, firstErr
}
