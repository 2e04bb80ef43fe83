package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/postform/pkg/postpolicy"
	"github.com/tendant/postform/pkg/postpolicy/storage/memory"
)

func setEnv(t *testing.T, host string) {
	t.Helper()
	t.Setenv("POSTFORM_PROTOCOL", "http")
	t.Setenv("AWS_HOST", host)
	t.Setenv("AWS_BUCKET", "test-bucket")
	t.Setenv("AWS_ACCESS_KEY_ID", "xyz")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "abc")
	t.Setenv("MAX_FILE_SIZE", "2097152")
	t.Setenv("UPLOAD_PATH", "uploads/")
	t.Setenv("POSTFORM_REFERER", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSignCommand(t *testing.T) {
	setEnv(t, "s3.amazonaws.com")

	out, err := run(t, "sign", "--name", "a.png", "--content-type", "image/png")
	require.NoError(t, err)

	var resp postpolicy.PolicyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "http://s3.amazonaws.com/test-bucket", resp.URL)
	assert.Equal(t, "uploads/a.png", resp.Key)
	assert.Equal(t, "xyz", resp.Fields["AWSAccessKeyId"])
	assert.Equal(t, postpolicy.Sign("abc", resp.Fields["policy"]), resp.Fields["signature"])
	assert.NotContains(t, out, `"abc"`)
}

func TestSignCommandRejectsInvalidOptions(t *testing.T) {
	setEnv(t, "s3.amazonaws.com")
	t.Setenv("POSTFORM_PROTOCOL", "ftp")

	_, err := run(t, "sign", "--name", "a.png", "--content-type", "image/png")
	require.Error(t, err)
	assert.ErrorIs(t, err, postpolicy.ErrInvalidOption)
}

func TestUploadCommand(t *testing.T) {
	store := memory.New()
	handlers := postpolicy.NewHandlers(postpolicy.New(), postpolicy.UploadRequest{},
		postpolicy.WithStubBucket(postpolicy.NewVerifier(postpolicy.StaticCredentials{"xyz": "abc"}), store))
	server := httptest.NewServer(handlers.Routes())
	defer server.Close()

	setEnv(t, strings.TrimPrefix(server.URL, "http://"))

	file := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(file, []byte("Hello, World!"), 0o600))

	out, err := run(t, "upload", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: 204 No Content")
	assert.Contains(t, out, "Key: uploads/hello.txt")

	obj, err := store.Get(context.Background(), "test-bucket", "uploads/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello, World!"), obj.Data)
	assert.True(t, strings.HasPrefix(obj.ContentType, "text/plain"), obj.ContentType)
}

func TestUploadCommandForbidden(t *testing.T) {
	handlers := postpolicy.NewHandlers(postpolicy.New(), postpolicy.UploadRequest{},
		postpolicy.WithStubBucket(postpolicy.NewVerifier(postpolicy.StaticCredentials{"xyz": "other"}), memory.New()))
	server := httptest.NewServer(handlers.Routes())
	defer server.Close()

	setEnv(t, strings.TrimPrefix(server.URL, "http://"))

	file := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(file, []byte("Hello, World!"), 0o600))

	_, err := run(t, "upload", file)
	require.Error(t, err)

	var statusErr *postpolicy.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 403, statusErr.Response.StatusCode)
	assert.Equal(t, "Forbidden", statusErr.Response.StatusText)
}

func TestBucketPolicyCommand(t *testing.T) {
	setEnv(t, "s3.amazonaws.com")

	out, err := run(t, "bucket-policy")
	require.NoError(t, err)
	assert.Contains(t, out, `"Resource": "arn:aws:s3:::test-bucket/*"`)
	assert.Contains(t, out, `"http://s3.amazonaws.com/test-bucket/*"`)

	out, err = run(t, "bucket-policy", "--referer", "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"https://example.com/*"`)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", detectContentType("a.png", nil))
	assert.Equal(t, "application/octet-stream", detectContentType("blob", []byte{0x00, 0x01, 0x02}))
}
