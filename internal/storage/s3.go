// Copyright 2025 James Ross
package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// S3Config configures the S3-compatible backend. Endpoint is only set for
// non-AWS deployments (MinIO, LocalStack); leaving it empty targets AWS S3
// in Region directly.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3 is a storage Backend over an S3-compatible object store. Chunks and
// metadata live under parallel key prefixes the same way Local splits them
// into parallel subdirectories.
type S3 struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3 opens a session against cfg and verifies bucket access.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to create AWS session", err)
	}

	client := s3.New(sess)
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindStorage, "failed to access S3 bucket", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "vaultkeep"
	}

	return &S3{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
	}, nil
}

func (s *S3) chunkKey(address string) string {
	return s.prefix + "/chunks/" + shardPrefix(address) + "/" + address
}

func (s *S3) metadataKey(key string) string {
	return s.prefix + "/metadata/" + key
}

func (s *S3) put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "S3 put failed", err)
	}
	return nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && (awsErr.Code() == s3.ErrCodeNoSuchKey || awsErr.Code() == "NotFound") {
			return nil, notFound
		}
		return nil, vaulterr.Wrap(vaulterr.KindStorage, "S3 get failed", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to read S3 object body", err)
	}
	return data, nil
}

func (s *S3) PutChunk(ctx context.Context, address string, data []byte) error {
	return s.put(ctx, s.chunkKey(address), data)
}

func (s *S3) GetChunk(ctx context.Context, address string) ([]byte, error) {
	return s.get(ctx, s.chunkKey(address))
}

func (s *S3) ChunkExists(ctx context.Context, address string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.chunkKey(address)),
	})
	if err == nil {
		return true, nil
	}
	if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == "NotFound" {
		return false, nil
	}
	return false, vaulterr.Wrap(vaulterr.KindStorage, "S3 head failed", err)
}

func (s *S3) DeleteChunk(ctx context.Context, address string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.chunkKey(address)),
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "S3 delete failed", err)
	}
	return nil
}

func (s *S3) ListChunks(ctx context.Context) ([]string, error) {
	var addresses []string
	prefix := s.prefix + "/chunks/"
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			addresses = append(addresses, key[len(key)-64:])
		}
		return true
	})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindStorage, "S3 list failed", err)
	}
	return addresses, nil
}

func (s *S3) PutMetadata(ctx context.Context, key string, data []byte) error {
	return s.put(ctx, s.metadataKey(key), data)
}

func (s *S3) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, s.metadataKey(key))
}

func (s *S3) DeleteMetadata(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.metadataKey(key)),
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "S3 metadata delete failed", err)
	}
	return nil
}

func (s *S3) Stats(ctx context.Context) (Stats, error) {
	var total uint64
	var count uint64
	prefix := s.prefix + "/chunks/"
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			count++
			total += uint64(aws.Int64Value(obj.Size))
		}
		return true
	})
	if err != nil {
		return Stats{}, vaulterr.Wrap(vaulterr.KindStorage, "S3 stats listing failed", err)
	}
	return Stats{TotalChunks: count, TotalBytes: total}, nil
}
