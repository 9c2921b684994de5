package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjects records PutObject calls in memory.
type fakeObjects struct {
	puts    []*s3.PutObjectInput
	bodies  []string
	putErr  error
	headErr error
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Store_Put(t *testing.T) {
	api := &fakeObjects{}
	store := newS3Store(api, Config{Bucket: "harena", PublicBaseURL: "https://cdn.harena.test/"})

	ref, err := store.Put(context.Background(), "cases/c1/x.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.harena.test/cases/c1/x.png", ref)

	require.Len(t, api.puts, 1)
	in := api.puts[0]
	assert.Equal(t, "harena", aws.ToString(in.Bucket))
	assert.Equal(t, "cases/c1/x.png", aws.ToString(in.Key))
	assert.Equal(t, "image/png", aws.ToString(in.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(in.ContentLength))
	assert.Equal(t, "png", api.bodies[0])
}

func TestS3Store_RefWithoutPublicURL(t *testing.T) {
	store := newS3Store(&fakeObjects{}, Config{Bucket: "harena"})

	ref, err := store.Put(context.Background(), "cases/c1/x.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://harena/cases/c1/x.png", ref)
}

func TestS3Store_Errors(t *testing.T) {
	api := &fakeObjects{putErr: errors.New("access denied"), headErr: errors.New("no such bucket")}
	store := newS3Store(api, Config{Bucket: "harena"})

	_, err := store.Put(context.Background(), "k", strings.NewReader("x"), 1, "image/png")
	assert.ErrorContains(t, err, "access denied")

	assert.ErrorContains(t, store.Ping(context.Background()), "no such bucket")
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3Store_StaticCredentials(t *testing.T) {
	store, err := NewS3Store(context.Background(), Config{
		Bucket:       "harena",
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "harena", store.bucket)
}
