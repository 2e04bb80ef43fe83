package postpolicy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExpirationFormat is the ISO-8601 UTC layout used for the policy expiration
const ExpirationFormat = "2006-01-02T15:04:05.000Z"

// ACLPublicRead is the canned ACL every upload is authorized for
const ACLPublicRead = "public-read"

// Condition operators
const (
	OpEq                 = "eq"
	OpStartsWith         = "starts-with"
	OpContentLengthRange = "content-length-range"
)

// Condition is one clause of a policy's conditions list.
//
// An OpEq condition serializes as {"field": "value"}, OpStartsWith as
// ["starts-with", "$field", "value"], OpContentLengthRange as
// ["content-length-range", min, max].
type Condition struct {
	Op    string
	Field string
	Value string
	Min   int64
	Max   int64
}

// Eq returns an exact-match condition
func Eq(field, value string) Condition {
	return Condition{Op: OpEq, Field: field, Value: value}
}

// StartsWith returns a prefix condition
func StartsWith(field, prefix string) Condition {
	return Condition{Op: OpStartsWith, Field: field, Value: prefix}
}

// ContentLengthRange returns a size condition, bounds inclusive
func ContentLengthRange(lo, hi int64) Condition {
	return Condition{Op: OpContentLengthRange, Min: lo, Max: hi}
}

// MarshalJSON implements json.Marshaler
func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.Op {
	case OpEq:
		return marshalJSON(map[string]string{c.Field: c.Value})
	case OpStartsWith:
		return marshalJSON([]string{OpStartsWith, "$" + c.Field, c.Value})
	case OpContentLengthRange:
		return marshalJSON([]any{OpContentLengthRange, c.Min, c.Max})
	}
	return nil, fmt.Errorf("unknown condition operator %q", c.Op)
}

// UnmarshalJSON implements json.Unmarshaler. Both the object form and the
// ["eq", "$field", "value"] array form are accepted for exact matches.
func (c *Condition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if len(m) != 1 {
			return fmt.Errorf("exact-match condition must have one field, got %d", len(m))
		}
		for field, value := range m {
			*c = Eq(field, value)
		}
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("condition must have 3 elements, got %d", len(parts))
	}
	var op string
	if err := json.Unmarshal(parts[0], &op); err != nil {
		return err
	}

	switch strings.ToLower(op) {
	case OpEq, OpStartsWith:
		var field, value string
		if err := json.Unmarshal(parts[1], &field); err != nil {
			return err
		}
		if err := json.Unmarshal(parts[2], &value); err != nil {
			return err
		}
		*c = Condition{Op: strings.ToLower(op), Field: strings.TrimPrefix(field, "$"), Value: value}
	case OpContentLengthRange:
		var lo, hi int64
		if err := json.Unmarshal(parts[1], &lo); err != nil {
			return err
		}
		if err := json.Unmarshal(parts[2], &hi); err != nil {
			return err
		}
		*c = ContentLengthRange(lo, hi)
	default:
		return fmt.Errorf("unknown condition operator %q", op)
	}
	return nil
}

// Policy is the POST policy document.
// Once encoded it must not change: the signature covers the encoded bytes.
type Policy struct {
	Expiration string      `json:"expiration"`
	Conditions []Condition `json:"conditions"`
}

// NewPolicy builds the upload policy for bucket. The condition order is fixed:
// bucket, acl, content-length-range, Content-Type prefix, key prefix.
func NewPolicy(bucket string, maxFileSize int64, expiresAt time.Time) Policy {
	return Policy{
		Expiration: expiresAt.UTC().Format(ExpirationFormat),
		Conditions: []Condition{
			Eq("bucket", bucket),
			Eq("acl", ACLPublicRead),
			ContentLengthRange(0, maxFileSize),
			StartsWith(FieldContentType, ""),
			StartsWith(FieldKey, ""),
		},
	}
}

// ExpiresAt parses the expiration timestamp
func (p Policy) ExpiresAt() (time.Time, error) {
	return time.Parse(ExpirationFormat, p.Expiration)
}

// Encode serializes the policy to compact JSON and base64-encodes it
func (p Policy) Encode() (string, error) {
	raw, err := marshalJSON(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePolicy reverses Encode
func DecodePolicy(encoded string) (Policy, error) {
	var p Policy
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPolicy, err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPolicy, err)
	}
	return p, nil
}

// marshalJSON is json.Marshal without HTML escaping or a trailing newline
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
