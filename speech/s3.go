// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"bytes"
	"context"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// S3Clips uploads clips to a bucket and hands Twilio a presigned GET URL, so
// the audio is fetched straight from S3 rather than through this service.
type S3Clips struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
}

var _ ClipStore = (*S3Clips)(nil)

func NewS3Clips(client *s3.Client, bucket, prefix string, expiry time.Duration) *S3Clips {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Clips{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  prefix,
		expiry:  expiry,
	}
}

func (s *S3Clips) key(id string) string {
	return path.Join(s.prefix, id+".mp3")
}

func (s *S3Clips) Put(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty clip")
	}
	key := s.key(uuid.NewString())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/mpeg"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "s3 put %s", key)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", errors.Wrapf(err, "presign %s", key)
	}
	return req.URL, nil
}

func (s *S3Clips) Get(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrClipNotFound
		}
		return nil, errors.Wrapf(err, "s3 get %s", id)
	}
	defer out.Body.Close()

	audio, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read clip")
	}
	return audio, nil
}
