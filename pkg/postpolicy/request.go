package postpolicy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultProtocol is used when UploadRequest.Protocol is empty
	DefaultProtocol = "https"

	// DefaultMaxFileSize caps the content-length-range condition when
	// UploadRequest.MaxFileSize is zero (2 MiB)
	DefaultMaxFileSize int64 = 2 * 1024 * 1024
)

// UploadRequest describes a single object to authorize for a POST-policy upload.
//
// Required: Host, Bucket, AccessKeyID, SecretAccessKey, Filename, ContentType, Data.
// A nil Data is missing; an empty non-nil slice is an empty file.
type UploadRequest struct {
	Protocol        string `option:"protocol" validate:"omitempty,oneof=http https"`
	Host            string `option:"host" validate:"required,storagehost"`
	Bucket          string `option:"bucket" validate:"required,excludes=/"`
	AccessKeyID     string `option:"accessKeyId" validate:"required"`
	SecretAccessKey string `option:"secretAccessKey" validate:"required"`
	MaxFileSize     int64  `option:"maxFileSize" validate:"gte=0"`
	Filename        string `option:"filename" validate:"required"`
	Path            string `option:"path"`
	ContentType     string `option:"contentType" validate:"required"`
	Data            []byte `option:"data" validate:"required"`
}

// String keeps the secret out of logs and fmt output
func (r UploadRequest) String() string {
	return fmt.Sprintf("UploadRequest{protocol=%s host=%s bucket=%s accessKeyId=%s key=%s contentType=%s size=%d}",
		r.protocol(), r.Host, r.Bucket, r.AccessKeyID, r.Key(), r.ContentType, len(r.Data))
}

// Key returns the object key: Filename, prefixed by Path when Path is set.
// A single trailing slash on Path is dropped before joining.
func (r UploadRequest) Key() string {
	if r.Path == "" {
		return r.Filename
	}
	return strings.TrimSuffix(r.Path, "/") + "/" + r.Filename
}

// TargetURL returns protocol://host/bucket
func (r UploadRequest) TargetURL() string {
	return fmt.Sprintf("%s://%s/%s", r.protocol(), r.Host, r.Bucket)
}

func (r UploadRequest) protocol() string {
	if r.Protocol == "" {
		return DefaultProtocol
	}
	return r.Protocol
}

func (r UploadRequest) maxFileSize() int64 {
	if r.MaxFileSize == 0 {
		return DefaultMaxFileSize
	}
	return r.MaxFileSize
}

// Validate checks every field in one pass. Missing required fields are reported
// as ErrMissingOption; when none are missing, fields breaking their contract are
// reported as ErrInvalidOption. The returned *OptionError names every offender.
func (r UploadRequest) Validate() error {
	return r.validate(true)
}

func (r UploadRequest) validate(withData bool) error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate upload request: %w", err)
	}

	var missing, invalid []string
	for _, fe := range fieldErrs {
		if !withData && fe.StructField() == "Data" {
			continue
		}
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}

	switch {
	case len(missing) > 0:
		return &OptionError{Kind: ErrMissingOption, Fields: missing}
	case len(invalid) > 0:
		return &OptionError{Kind: ErrInvalidOption, Fields: invalid}
	}
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("option"); name != "" {
				return name
			}
			return f.Name
		})
		// registration only fails on an empty tag or nil func
		_ = v.RegisterValidation("storagehost", isStorageHost)
		validate = v
	})
	return validate
}

// isStorageHost accepts a bare hostname with an optional port
func isStorageHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	return host != "" && !strings.ContainsAny(host, "/?#@ \t\r\n")
}
