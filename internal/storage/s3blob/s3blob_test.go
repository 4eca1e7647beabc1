package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seteams/hubcore/internal/common"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKey:       "minioadmin",
		SecretKey:       "minioadmin",
		BaseEndpoint:    "http://127.0.0.1:9000",
		Bucket:          "hubcore",
		SignedURLExpiry: 10 * time.Minute,
	})
	require.NoError(t, err)
	return store
}

func TestNew_ErrorFromConfigLoader(t *testing.T) {
	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := New(context.Background(), Config{})
	assert.ErrorContains(t, err, "load-fail")
}

func TestPut_ReturnsKeyAsRef(t *testing.T) {
	store := newTestStore(t)

	orig := putObject
	defer func() { putObject = orig }()

	var gotBucket, gotKey string
	var gotBody []byte
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		gotBucket = *in.Bucket
		gotKey = *in.Key
		var err error
		gotBody, err = io.ReadAll(in.Body)
		return &s3.PutObjectOutput{}, err
	}

	ref, err := store.Put(context.Background(), "encrypted/f1/chunk_0.bin", []byte("ciphertext"))
	require.NoError(t, err)
	assert.Equal(t, "encrypted/f1/chunk_0.bin", ref)
	assert.Equal(t, "hubcore", gotBucket)
	assert.Equal(t, "encrypted/f1/chunk_0.bin", gotKey)
	assert.Equal(t, []byte("ciphertext"), gotBody)
}

func TestPut_Error(t *testing.T) {
	store := newTestStore(t)

	orig := putObject
	defer func() { putObject = orig }()
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("put-fail")
	}

	_, err := store.Put(context.Background(), "k", []byte("x"))
	assert.ErrorContains(t, err, "put-fail")
}

func TestGet_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	orig := getObject
	defer func() { getObject = orig }()
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("stored bytes")))}, nil
	}

	data, err := store.Get(context.Background(), "encrypted/f1/header.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("stored bytes"), data)
}

func TestGet_MissingObject(t *testing.T) {
	store := newTestStore(t)

	orig := getObject
	defer func() { getObject = orig }()
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return nil, errors.New("NoSuchKey")
	}

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestURL_Presigned(t *testing.T) {
	store := newTestStore(t)

	orig := presignGetObject
	defer func() { presignGetObject = orig }()

	var gotKey string
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotKey = *in.Key
		return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Key}, nil
	}

	url, err := store.URL(context.Background(), "encrypted/f1/chunk_0.bin")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/encrypted/f1/chunk_0.bin", url)
	assert.Equal(t, "encrypted/f1/chunk_0.bin", gotKey)
}

func TestURL_Error(t *testing.T) {
	store := newTestStore(t)

	orig := presignGetObject
	defer func() { presignGetObject = orig }()
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-fail")
	}

	_, err := store.URL(context.Background(), "k")
	assert.ErrorContains(t, err, "presign-fail")
}
