package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"POSTFORM_PROTOCOL", "AWS_HOST", "AWS_BUCKET", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN", "MAX_FILE_SIZE", "UPLOAD_PATH", "AWS_REGION", "AWS_S3_ENDPOINT",
	"POSTFORM_REFERER", "POSTFORM_JWT_SECRET", "POSTFORM_API_KEY_SHA256", "AWS_PROFILE",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https", cfg.Protocol)
	assert.Equal(t, int64(2097152), cfg.MaxFileSize)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Empty(t, cfg.Host)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTFORM_PROTOCOL", "http")
	t.Setenv("AWS_HOST", "s3.amazonaws.com")
	t.Setenv("AWS_BUCKET", "test-bucket")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "abc")
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("UPLOAD_PATH", "uploads/")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Protocol)
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://s3.amazonaws.com/test-bucket", cfg.TargetURL())

	req := cfg.UploadRequest("f.txt", "text/plain", []byte("hi"))
	assert.Equal(t, "test-bucket", req.Bucket)
	assert.Equal(t, "abc", req.SecretAccessKey)
	assert.Equal(t, "uploads/f.txt", req.Key())
	assert.NoError(t, req.Validate())
}

func TestLoadRejectsBadNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_FILE_SIZE", "lots")

	_, err := Load()
	assert.Error(t, err)
}

func TestResolveCredentialsKeepsConfiguredPair(t *testing.T) {
	cfg := Config{AccessKeyID: "AKIA", SecretAccessKey: "abc", Region: "us-east-1"}
	require.NoError(t, cfg.ResolveCredentials(context.Background()))
	assert.Equal(t, "AKIA", cfg.AccessKeyID)
	assert.Equal(t, "abc", cfg.SecretAccessKey)
}

func TestResolveCredentialsFromSharedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	credsFile := filepath.Join(dir, "credentials")
	require.NoError(t, os.WriteFile(credsFile, []byte("[default]\naws_access_key_id = AKIDSHARED\naws_secret_access_key = sharedsecret\n"), 0o600))
	configFile := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(configFile, []byte("[default]\n"), 0o600))

	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", credsFile)
	t.Setenv("AWS_CONFIG_FILE", configFile)
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	cfg := Config{Region: "us-east-1"}
	require.NoError(t, cfg.ResolveCredentials(context.Background()))
	assert.Equal(t, "AKIDSHARED", cfg.AccessKeyID)
	assert.Equal(t, "sharedsecret", cfg.SecretAccessKey)
}
