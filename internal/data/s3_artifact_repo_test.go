package data

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports-api/internal/core"
)

type fakeS3 struct {
	putErr  error
	headErr error
	lastPut *s3.PutObjectInput
	body    []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPut = in
	if in.Body != nil {
		b, err := io.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
		f.body = b
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3ArtifactRepo_Put(t *testing.T) {
	fake := &fakeS3{}
	repo := &S3ArtifactRepo{client: fake, bucket: "reports"}

	loc, err := repo.Put(context.Background(), core.PutArtifactParams{
		Key:         "/generated/42.json",
		Body:        []byte(`{"id":42}`),
		ContentType: "application/json",
		Metadata:    map[string]string{"report-id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/generated/42.json", loc)

	require.NotNil(t, fake.lastPut)
	assert.Equal(t, "reports", aws.ToString(fake.lastPut.Bucket))
	assert.Equal(t, "generated/42.json", aws.ToString(fake.lastPut.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.lastPut.ContentType))
	assert.Equal(t, int64(9), aws.ToInt64(fake.lastPut.ContentLength))
	assert.Equal(t, "42", fake.lastPut.Metadata["report-id"])
	assert.Equal(t, `{"id":42}`, string(fake.body))
}

func TestS3ArtifactRepo_PutRequiresKey(t *testing.T) {
	repo := &S3ArtifactRepo{client: &fakeS3{}, bucket: "reports"}
	_, err := repo.Put(context.Background(), core.PutArtifactParams{Key: "  / "})
	require.ErrorIs(t, err, ErrArtifactKeyRequired)
}

func TestS3ArtifactRepo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"typed no such bucket", &types.NoSuchBucket{}, ErrArtifactBucketNotFound},
		{"access denied code", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrArtifactAccessDenied},
		{"bad signature", &smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, ErrArtifactAccessDenied},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, ErrArtifactThrottled},
		{"service unavailable", &smithy.GenericAPIError{Code: "ServiceUnavailable"}, ErrArtifactUnavailable},
		{"transport error", errors.New("dial tcp: connection refused"), ErrArtifactUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &S3ArtifactRepo{client: &fakeS3{putErr: tt.err}, bucket: "reports"}
			_, err := repo.Put(context.Background(), core.PutArtifactParams{Key: "k"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "reports/k")
		})
	}

	t.Run("unknown api code keeps only the cause", func(t *testing.T) {
		cause := &smithy.GenericAPIError{Code: "EntityTooLarge"}
		repo := &S3ArtifactRepo{client: &fakeS3{putErr: cause}, bucket: "reports"}
		_, err := repo.Put(context.Background(), core.PutArtifactParams{Key: "k"})
		require.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrArtifactUnavailable)
	})

	t.Run("context cancellation is not reclassified", func(t *testing.T) {
		repo := &S3ArtifactRepo{client: &fakeS3{putErr: context.Canceled}, bucket: "reports"}
		_, err := repo.Put(context.Background(), core.PutArtifactParams{Key: "k"})
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrArtifactUnavailable)
	})
}

func TestS3ArtifactRepo_Health(t *testing.T) {
	repo := &S3ArtifactRepo{client: &fakeS3{}, bucket: "reports"}
	require.NoError(t, repo.Health(context.Background()))

	repo = &S3ArtifactRepo{client: &fakeS3{headErr: &smithy.GenericAPIError{Code: "NotFound"}}, bucket: "reports"}
	assert.ErrorIs(t, repo.Health(context.Background()), ErrArtifactBucketNotFound)
}

func TestS3Config_Validate(t *testing.T) {
	assert.Error(t, S3Config{}.Validate())
	assert.Error(t, S3Config{Bucket: "b", AccessKeyID: "id"}.Validate())
	assert.NoError(t, S3Config{Bucket: "b"}.Validate())
	assert.NoError(t, S3Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "s"}.Validate())
}
