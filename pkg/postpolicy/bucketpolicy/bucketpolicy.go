// Package bucketpolicy builds and applies the bucket policy that lets browsers
// on a given site post uploads into a bucket.
package bucketpolicy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	// PolicyVersion is the IAM policy language version
	PolicyVersion = "2012-10-17"
	// PolicyID identifies the generated policy on the bucket
	PolicyID = "upload-from-s3-hosted-site"
)

// Document is an S3 bucket policy
type Document struct {
	Version   string      `json:"Version"`
	ID        string      `json:"Id"`
	Statement []Statement `json:"Statement"`
}

// Statement is one bucket policy statement
type Statement struct {
	Sid       string                         `json:"Sid"`
	Effect    string                         `json:"Effect"`
	Principal string                         `json:"Principal"`
	Action    []string                       `json:"Action"`
	Resource  string                         `json:"Resource"`
	Condition map[string]map[string][]string `json:"Condition,omitempty"`
}

// New returns a policy allowing s3:PutObject and s3:PutObjectAcl on every key
// of bucket, for requests whose Referer starts with referer.
// referer is the page origin uploads come from, e.g. https://s3.amazonaws.com/my-bucket.
func New(bucket, referer string) (Document, error) {
	if bucket == "" {
		return Document{}, errors.New("bucket name is required")
	}
	if referer == "" {
		return Document{}, errors.New("referer is required")
	}

	return Document{
		Version: PolicyVersion,
		ID:      PolicyID,
		Statement: []Statement{{
			Sid:       "allow put requests from the uploader",
			Effect:    "Allow",
			Principal: "*",
			Action:    []string{"s3:PutObject", "s3:PutObjectAcl"},
			Resource:  "arn:aws:s3:::" + bucket + "/*",
			Condition: map[string]map[string][]string{
				"StringLike": {
					"aws:Referer": {strings.TrimSuffix(referer, "/") + "/*"},
				},
			},
		}},
	}, nil
}

// PutBucketPolicyAPI is the part of the S3 client Apply needs
type PutBucketPolicyAPI interface {
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
}

// Apply replaces the policy of bucket with doc
func Apply(ctx context.Context, api PutBucketPolicyAPI, bucket string, doc Document) error {
	body, err := doc.JSON()
	if err != nil {
		return err
	}

	_, err = api.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(body),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to put bucket policy on %s (%s): %w", bucket, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("failed to put bucket policy on %s: %w", bucket, err)
	}
	return nil
}

// ClientConfig options for the S3 client used by Apply
type ClientConfig struct {
	Region          string // AWS region
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing
}

// NewClient creates an S3 client. Without a key pair the default AWS
// credential chain is used.
func NewClient(ctx context.Context, config ClientConfig) (*s3.Client, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return s3.NewFromConfig(awsCfg, s3Options...), nil
}
