package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in a map and records the last request of each kind.
type fakeS3 struct {
	objects map[string][]byte
	err     error
	getErr  error
	calls   int

	lastPut    *s3.PutObjectInput
	lastDelete *s3.DeleteObjectInput
	deadline   bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	f.lastPut = in
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	f.lastDelete = in
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_PutGetDelete(t *testing.T) {
	api := newFakeS3()
	s := NewS3(api, "catalog-images", time.Second)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G'}

	require.NoError(t, s.Put(ctx, "k.png", data, ImageContentType))
	assert.True(t, api.deadline, "calls are bounded by the blob timeout")
	assert.Equal(t, "catalog-images", aws.ToString(api.lastPut.Bucket))
	assert.Equal(t, "k.png", aws.ToString(api.lastPut.Key))
	assert.Equal(t, int64(len(data)), aws.ToInt64(api.lastPut.ContentLength))
	assert.Equal(t, ImageContentType, aws.ToString(api.lastPut.ContentType))

	got, err := s.Get(ctx, "k.png")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, s.Delete(ctx, "k.png"))
	assert.Equal(t, "k.png", aws.ToString(api.lastDelete.Key))

	_, err = s.Get(ctx, "k.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3_GetNotFoundErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no such key", &types.NoSuchKey{}},
		{"not found", &types.NotFound{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeS3()
			api.getErr = tt.err
			s := NewS3(api, "bucket", time.Second)

			_, err := s.Get(context.Background(), "k.png")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestS3_GetOtherErrorIsWrapped(t *testing.T) {
	api := newFakeS3()
	cause := errors.New("access denied")
	api.getErr = cause
	s := NewS3(api, "bucket", time.Second)

	_, err := s.Get(context.Background(), "k.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "k.png")
}

func TestS3_InvalidKeys(t *testing.T) {
	api := newFakeS3()
	s := NewS3(api, "bucket", time.Second)
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "a/b", `a\b`} {
		assert.ErrorIs(t, s.Put(ctx, key, []byte("x"), ImageContentType), ErrInvalidKey, key)
		assert.ErrorIs(t, s.Delete(ctx, key), ErrInvalidKey, key)

		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound, key)
	}
	assert.Zero(t, api.calls, "invalid keys never reach S3")
}

func TestS3_WriteErrorsAreWrapped(t *testing.T) {
	api := newFakeS3()
	cause := errors.New("slow down")
	api.err = cause
	s := NewS3(api, "bucket", time.Second)

	err := s.Put(context.Background(), "k.png", []byte("x"), ImageContentType)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "put object k.png")

	err = s.Delete(context.Background(), "k.png")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "delete object k.png")
}
