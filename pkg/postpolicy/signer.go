package postpolicy

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"log/slog"
	"time"
)

// Signer validates upload requests and builds signed POST-policy forms.
// It holds no mutable state and is safe for concurrent use.
type Signer struct {
	now    func() time.Time
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		now:    time.Now,
		ttl:    DefaultPolicyTTL,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Build validates req and returns the signed form, file included.
// Nothing is built when validation fails.
//
// Example:
//
//	upload, err := postpolicy.New().Build(req)
//	resp, err := postpolicy.NewClient().Submit(ctx, upload)
func (s *Signer) Build(req UploadRequest) (*Upload, error) {
	if err := req.validate(true); err != nil {
		return nil, err
	}
	return s.construct(req)
}

// Presign validates req without requiring Data and returns the signed text
// fields only. The caller (typically a browser) supplies the file part.
func (s *Signer) Presign(req UploadRequest) (*Upload, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	upload, err := s.construct(req)
	if err != nil {
		return nil, err
	}
	upload.File = nil
	return upload, nil
}

func (s *Signer) construct(req UploadRequest) (*Upload, error) {
	policy := NewPolicy(req.Bucket, req.maxFileSize(), s.now().Add(s.ttl))
	encoded, err := policy.Encode()
	if err != nil {
		return nil, err
	}
	signature := Sign(req.SecretAccessKey, encoded)

	key := req.Key()
	upload := &Upload{
		URL:       req.TargetURL(),
		Key:       key,
		Policy:    encoded,
		Signature: signature,
		Fields: []Field{
			{Name: FieldKey, Value: key},
			{Name: FieldPolicy, Value: encoded},
			{Name: FieldContentType, Value: req.ContentType},
			{Name: FieldSignature, Value: signature},
			{Name: FieldAccessKeyID, Value: req.AccessKeyID},
			{Name: FieldACL, Value: ACLPublicRead},
		},
		Filename: req.Filename,
		File:     req.Data,
	}

	s.logger.Debug("built upload form",
		"url", upload.URL,
		"key", key,
		"expiration", policy.Expiration,
		"size", len(req.Data))

	return upload, nil
}

// Sign returns base64(HMAC-SHA1(secret, encodedPolicy)), the signature the
// storage service recomputes for a POST-policy form
func Sign(secret, encodedPolicy string) string {
	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(encodedPolicy))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Build validates req and builds its signed form with a default Signer
func Build(req UploadRequest) (*Upload, error) {
	return New().Build(req)
}
