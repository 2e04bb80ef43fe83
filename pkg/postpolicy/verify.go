package postpolicy

import (
	"crypto/hmac"
	"fmt"
	"strings"
	"time"
)

// CredentialsStore looks up the signing secret for an access key
type CredentialsStore interface {
	Lookup(accessKeyID string) (secret string, ok bool)
}

// StaticCredentials is an in-memory CredentialsStore keyed by access key ID
type StaticCredentials map[string]string

// Lookup implements CredentialsStore.
func (s StaticCredentials) Lookup(accessKeyID string) (string, bool) {
	secret, ok := s[strings.TrimSpace(accessKeyID)]
	return secret, ok && secret != ""
}

// Submission is a POST-policy form as received by the storage service
type Submission struct {
	Bucket   string
	Fields   map[string]string
	FileSize int64
}

// Field returns a form field. An exact name match wins; otherwise the name is
// matched case-insensitively, and a name matching more than one field is not found.
func (s Submission) Field(name string) (string, bool) {
	if v, ok := s.Fields[name]; ok {
		return v, true
	}
	var found string
	matches := 0
	for k, v := range s.Fields {
		if strings.EqualFold(k, name) {
			found = v
			matches++
		}
	}
	return found, matches == 1
}

// caseDuplicate returns a field name that appears more than once when case is ignored
func (s Submission) caseDuplicate() (string, bool) {
	seen := make(map[string]bool, len(s.Fields))
	for k := range s.Fields {
		lower := strings.ToLower(k)
		if seen[lower] {
			return lower, true
		}
		seen[lower] = true
	}
	return "", false
}

// Verifier checks POST-policy submissions the way the storage service does
type Verifier struct {
	creds CredentialsStore
	now   func() time.Time
}

// VerifierOption is a functional option for configuring a Verifier
type VerifierOption func(*Verifier)

// WithVerifierClock sets the time source used for the expiration check
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier backed by creds
func NewVerifier(creds CredentialsStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		creds: creds,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify authenticates sub and checks it against every policy condition.
// It returns the decoded policy on success.
func (v *Verifier) Verify(sub Submission) (*Policy, error) {
	if name, dup := sub.caseDuplicate(); dup {
		return nil, fmt.Errorf("%w: field %s given more than once", ErrMalformedForm, name)
	}

	accessKeyID, _ := sub.Field(FieldAccessKeyID)
	encoded, _ := sub.Field(FieldPolicy)
	signature, _ := sub.Field(FieldSignature)
	key, _ := sub.Field(FieldKey)
	if accessKeyID == "" || encoded == "" || signature == "" || key == "" {
		return nil, ErrMalformedForm
	}

	secret, ok := v.creds.Lookup(accessKeyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccessKey, accessKeyID)
	}

	expected := Sign(secret, encoded)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, ErrSignatureMismatch
	}

	policy, err := DecodePolicy(encoded)
	if err != nil {
		return nil, err
	}

	expiresAt, err := policy.ExpiresAt()
	if err != nil {
		return nil, fmt.Errorf("%w: expiration: %v", ErrMalformedPolicy, err)
	}
	if !v.now().Before(expiresAt) {
		return nil, fmt.Errorf("%w at %s", ErrPolicyExpired, policy.Expiration)
	}

	if err := checkConditions(policy.Conditions, sub); err != nil {
		return nil, err
	}
	return &policy, nil
}

func checkConditions(conditions []Condition, sub Submission) error {
	covered := map[string]bool{}

	for _, c := range conditions {
		switch c.Op {
		case OpEq:
			covered[strings.ToLower(c.Field)] = true
			got := submittedValue(sub, c.Field)
			if got != c.Value {
				return fmt.Errorf("%w: %s must equal %q, got %q", ErrConditionFailed, c.Field, c.Value, got)
			}
		case OpStartsWith:
			covered[strings.ToLower(c.Field)] = true
			got := submittedValue(sub, c.Field)
			if !strings.HasPrefix(got, c.Value) {
				return fmt.Errorf("%w: %s must start with %q", ErrConditionFailed, c.Field, c.Value)
			}
		case OpContentLengthRange:
			if sub.FileSize < c.Min || sub.FileSize > c.Max {
				return fmt.Errorf("%w: content length %d outside [%d, %d]", ErrConditionFailed, sub.FileSize, c.Min, c.Max)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrMalformedPolicy, c.Op)
		}
	}

	// every submitted field must be named by a condition
	for name := range sub.Fields {
		lower := strings.ToLower(name)
		if exemptField(lower) || covered[lower] {
			continue
		}
		return fmt.Errorf("%w: extra input field %s not in policy", ErrConditionFailed, name)
	}
	return nil
}

func submittedValue(sub Submission, field string) string {
	if strings.EqualFold(field, "bucket") {
		return sub.Bucket
	}
	v, _ := sub.Field(field)
	return v
}

func exemptField(lower string) bool {
	switch lower {
	case strings.ToLower(FieldPolicy), strings.ToLower(FieldSignature),
		strings.ToLower(FieldAccessKeyID), FieldFile:
		return true
	}
	return strings.HasPrefix(lower, "x-ignore-")
}
