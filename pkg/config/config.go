// Package config loads postform settings from the environment.
package config

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/postform/pkg/postpolicy"
)

// Config is the postform environment: upload destination, credentials,
// size cap and key prefix, plus settings for serve and bucket-policy.
type Config struct {
	Protocol        string `env:"POSTFORM_PROTOCOL" env-default:"https"`
	Host            string `env:"AWS_HOST"`
	Bucket          string `env:"AWS_BUCKET"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	MaxFileSize     int64  `env:"MAX_FILE_SIZE" env-default:"2097152"`
	Path            string `env:"UPLOAD_PATH"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"AWS_S3_ENDPOINT"`
	Referer         string `env:"POSTFORM_REFERER"`
	JWTSecret       string `env:"POSTFORM_JWT_SECRET"`
	APIKeySHA256    string `env:"POSTFORM_API_KEY_SHA256"`
}

// Load reads the configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	return cfg, nil
}

// UploadRequest returns a request carrying the configured destination and
// credentials for one file.
func (c Config) UploadRequest(filename, contentType string, data []byte) postpolicy.UploadRequest {
	return postpolicy.UploadRequest{
		Protocol:        c.Protocol,
		Host:            c.Host,
		Bucket:          c.Bucket,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		MaxFileSize:     c.MaxFileSize,
		Path:            c.Path,
		Filename:        filename,
		ContentType:     contentType,
		Data:            data,
	}
}

// TargetURL is protocol://host/bucket, the page origin browsers post from
func (c Config) TargetURL() string {
	return c.UploadRequest("", "", nil).TargetURL()
}

// ResolveCredentials fills an unset access key pair from the AWS default
// credential chain (shared credentials file, web identity, instance role).
func (c *Config) ResolveCredentials(ctx context.Context) error {
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	c.AccessKeyID = creds.AccessKeyID
	c.SecretAccessKey = creds.SecretAccessKey
	return nil
}
