package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBucket   = "dkron-backup-test"
	testEndpoint = "http://localhost:9000"
	testAccess   = "minioadmin"
	testSecret   = "minioadmin"
	testRegion   = "us-east-1"
)

type fakePutObject struct {
	calls []*s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &s3.PutObjectOutput{}, nil
}

func writeSnapshot(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dkron-backup-latest.json")
	require.NoError(t, os.WriteFile(p, []byte(`[{"name":"job-a"}]`), 0o644))
	return p
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestUploadFile(t *testing.T) {
	fake := &fakePutObject{}
	u := newWithClient(fake, Config{Bucket: testBucket}, bufferLogger(&bytes.Buffer{}))
	local := writeSnapshot(t)

	meta, err := u.UploadFile(context.Background(), local, "dkron-backup_260206_12_00.json")
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	in := fake.calls[0]
	assert.Equal(t, testBucket, aws.ToString(in.Bucket))
	assert.Equal(t, "dkron-backup_260206_12_00.json", aws.ToString(in.Key))
	assert.Equal(t, int64(len(fake.body)), aws.ToInt64(in.ContentLength))
	assert.Equal(t, `[{"name":"job-a"}]`, string(fake.body))
	assert.Equal(t, "dkron-backup_260206_12_00.json", meta.FileName)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		local  string
		name   string
		want   string
	}{
		{"", "/tmp/x/dkron-backup-latest.json", "", "dkron-backup-latest.json"},
		{"", "/tmp/x/a.json", "dkron-backup_260206_12_00.json", "dkron-backup_260206_12_00.json"},
		{"/dkron/", "/tmp/x/a.json", "b.json", "dkron/b.json"},
		{"a/b", "/tmp/x/a.json", "", "a/b/a.json"},
	}
	for _, tt := range tests {
		u := newWithClient(&fakePutObject{}, Config{Bucket: testBucket, KeyPrefix: tt.prefix}, nil)
		if got := u.ObjectKey(tt.local, tt.name); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) with prefix %q = %q, want %q", tt.local, tt.name, tt.prefix, got, tt.want)
		}
	}
}

func TestUpload_FailureIsReportedNotReturned(t *testing.T) {
	fake := &fakePutObject{err: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket missing"}}
	var logs bytes.Buffer
	u := newWithClient(fake, Config{Bucket: testBucket}, bufferLogger(&logs))

	ok := u.Upload(context.Background(), writeSnapshot(t), "")
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "archive upload failed")
	assert.Contains(t, logs.String(), "NoSuchBucket")
}

func TestUpload_MissingFile(t *testing.T) {
	fake := &fakePutObject{}
	u := newWithClient(fake, Config{Bucket: testBucket}, bufferLogger(&bytes.Buffer{}))

	ok := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.json"), "")
	assert.False(t, ok)
	assert.Empty(t, fake.calls)
}

func TestUpload_Success(t *testing.T) {
	fake := &fakePutObject{}
	var logs bytes.Buffer
	u := newWithClient(fake, Config{Bucket: testBucket, StorageClass: "STANDARD_IA"}, bufferLogger(&logs))

	assert.True(t, u.Upload(context.Background(), writeSnapshot(t), ""))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "dkron-backup-latest.json", aws.ToString(fake.calls[0].Key))
	assert.Equal(t, "STANDARD_IA", string(fake.calls[0].StorageClass))
	assert.Contains(t, logs.String(), "archive uploaded")
}

func TestNew_ConfigValidation(t *testing.T) {
	_, err := New(context.Background(), Config{
		// Missing required bucket
		Region:          testRegion,
		AccessKeyID:     testAccess,
		SecretAccessKey: testSecret,
	}, nil)
	require.Error(t, err)
}

func TestUpload_SingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			attempts.Add(1)
		}
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	u, err := New(context.Background(), Config{
		Bucket:          testBucket,
		Region:          testRegion,
		Endpoint:        server.URL,
		AccessKeyID:     testAccess,
		SecretAccessKey: testSecret,
		ForcePathStyle:  true,
	}, bufferLogger(&bytes.Buffer{}))
	require.NoError(t, err)

	ok := u.Upload(context.Background(), writeSnapshot(t), "")
	assert.False(t, ok)
	assert.Equal(t, int32(1), attempts.Load(), "a failed upload is not retried")
}

func TestGenericAPIErrorIsAPIError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "AccessDenied"})
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())
}

func skipUnlessS3(t *testing.T) {
	t.Helper()
	if os.Getenv("S3_TEST") == "" {
		t.Skip("S3_TEST not set, skipping S3 integration tests")
	}
}

// createTestBucket creates the test bucket if it doesn't exist.
func createTestBucket(t *testing.T, ctx context.Context) *s3.Client {
	t.Helper()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(testRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(testAccess, testSecret, ""),
		),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(testEndpoint)
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(testBucket),
	})
	if err != nil && !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return client
}

func TestIntegration_Upload(t *testing.T) {
	skipUnlessS3(t)
	ctx := context.Background()
	client := createTestBucket(t, ctx)

	prefix := fmt.Sprintf("test-%d", time.Now().UnixNano())
	u, err := New(ctx, Config{
		Bucket:          testBucket,
		KeyPrefix:       prefix,
		Region:          testRegion,
		Endpoint:        testEndpoint,
		AccessKeyID:     testAccess,
		SecretAccessKey: testSecret,
		ForcePathStyle:  true,
	}, nil)
	require.NoError(t, err)

	require.True(t, u.Upload(ctx, writeSnapshot(t), "dkron-backup_260206_12_00.json"))

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(testBucket),
		Key:    aws.String(prefix + "/dkron-backup_260206_12_00.json"),
	})
	require.NoError(t, err)
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"job-a"}]`, string(data))
}
