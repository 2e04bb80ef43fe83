package postpolicy

import (
	"errors"
	"fmt"
	"strings"
)

// Request validation errors
var (
	// ErrMissingOption is returned when one or more required options are absent
	ErrMissingOption = errors.New("missing required option")

	// ErrInvalidOption is returned when one or more provided options break their type contract
	ErrInvalidOption = errors.New("invalid option")
)

// Policy verification errors
var (
	// ErrMalformedForm is returned when a submission lacks the policy, signature, key or access key
	// fields, or names a field twice ignoring case
	ErrMalformedForm = errors.New("postpolicy: malformed form submission")

	// ErrUnknownAccessKey is returned when the AWSAccessKeyId is not known to the credentials store
	ErrUnknownAccessKey = errors.New("postpolicy: unknown access key")

	// ErrSignatureMismatch is returned when the signature does not match the encoded policy
	ErrSignatureMismatch = errors.New("postpolicy: signature does not match")

	// ErrMalformedPolicy is returned when the policy cannot be decoded
	ErrMalformedPolicy = errors.New("postpolicy: malformed policy document")

	// ErrPolicyExpired is returned when the policy expiration is in the past
	ErrPolicyExpired = errors.New("postpolicy: policy expired")

	// ErrConditionFailed is returned when a submission violates a policy condition
	ErrConditionFailed = errors.New("postpolicy: policy condition failed")
)

// OptionError lists every request field that failed one validation pass.
// Kind is ErrMissingOption or ErrInvalidOption.
type OptionError struct {
	Kind   error
	Fields []string
}

func (e *OptionError) Error() string {
	suffix := ""
	if len(e.Fields) > 1 {
		suffix = "s"
	}
	return fmt.Sprintf("%s%s: %s", e.Kind, suffix, strings.Join(e.Fields, ", "))
}

func (e *OptionError) Unwrap() error {
	return e.Kind
}

// StatusError is returned by Client.Submit when the storage service answers
// with a non-2xx status. The response is carried unchanged.
type StatusError struct {
	Response *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("postpolicy: upload rejected with status %d %s", e.Response.StatusCode, e.Response.StatusText)
}

// IsAuthError returns true if the error is a policy verification error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnknownAccessKey) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrMalformedPolicy) ||
		errors.Is(err, ErrPolicyExpired) ||
		errors.Is(err, ErrConditionFailed)
}
