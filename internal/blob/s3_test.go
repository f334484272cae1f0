package blob

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filesmanager/internal/common"
	"filesmanager/internal/config"
)

func TestS3StoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("set TEST_S3_ENDPOINT (and TEST_S3_BUCKET, TEST_S3_ACCESS_KEY, TEST_S3_SECRET_KEY) to run s3 blob tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewS3Store(ctx, config.StorageConfig{
		Backend:     "s3",
		S3Endpoint:  endpoint,
		S3Region:    "us-east-1",
		S3Bucket:    os.Getenv("TEST_S3_BUCKET"),
		S3AccessKey: os.Getenv("TEST_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("TEST_S3_SECRET_KEY"),
		S3Prefix:    "tests",
	})
	require.NoError(t, err)

	ref, err := store.Write(ctx, []byte("hello"))
	require.NoError(t, err)
	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Read(ctx, DerivativeRef(ref, 100))
	assert.ErrorIs(t, err, common.ErrNotFound)
}
