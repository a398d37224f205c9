package minio

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/internal/infrastructure/storage/blob"
	"github.com/turtacn/molx/pkg/errors"
)

var ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")

// Store keeps processed split blobs in one bucket. It implements blob.Store;
// opened objects use ranged GETs for ReadAt.
type Store struct {
	client   *MinIOClient
	logger   logging.Logger
	bucket   string
	prefix   string
	partSize int64
}

var _ blob.Store = (*Store)(nil)

func NewStore(client *MinIOClient, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{
		client:   client,
		logger:   log.Named("minio"),
		bucket:   client.config.Bucket,
		prefix:   strings.Trim(client.config.Prefix, "/"),
		partSize: client.config.PartSize,
	}
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *Store) api() (MinIOAPI, error) {
	if s.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	return s.client.GetClient(), nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *Store) Location(key string) string {
	return "s3://" + s.bucket + "/" + s.objectKey(key)
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if key == "" {
		return ErrInvalidRequest.WithDetail("empty key")
	}
	api, err := s.api()
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if size < 0 {
		opts.PartSize = uint64(s.partSize)
	}
	info, err := api.PutObject(ctx, s.bucket, s.objectKey(key), r, size, opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "upload failed")
	}
	s.logger.Debug("object uploaded",
		logging.String("key", info.Key),
		logging.Int64("size", info.Size),
		logging.String("etag", info.ETag))
	return nil
}

type object struct {
	*minio.Object
	size int64
}

func (o *object) Size() int64 { return o.size }

func (s *Store) Open(ctx context.Context, key string) (blob.Object, error) {
	api, err := s.api()
	if err != nil {
		return nil, err
	}
	obj, err := api.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "get object")
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, blob.ErrNotFound.WithDetail(s.Location(key))
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "stat object")
	}
	return &object{Object: obj, size: stat.Size}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	api, err := s.api()
	if err != nil {
		return false, err
	}
	_, err = api.StatObject(ctx, s.bucket, s.objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorage, "stat object")
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	api, err := s.api()
	if err != nil {
		return err
	}
	if err := api.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "remove object")
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	api, err := s.api()
	if err != nil {
		return nil, err
	}
	full := s.objectKey(prefix)
	var keys []string
	for obj := range api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: full, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorage, "list objects")
		}
		k := obj.Key
		if s.prefix != "" {
			k = strings.TrimPrefix(k, s.prefix+"/")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
