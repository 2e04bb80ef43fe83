package postpolicy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const (
	// VerifiedUploadContextKey is the context key for storing the verified upload
	VerifiedUploadContextKey contextKey = "postpolicy:verified_upload"
)

const (
	// defaultMaxMemory is the multipart form size kept in memory before spilling to disk
	defaultMaxMemory = 32 << 20

	// FormOverhead is the room left for the text fields and part headers
	// when a body cap is derived from a file size limit
	FormOverhead int64 = 64 << 10
)

// VerifiedUpload is a form submission that passed policy verification
type VerifiedUpload struct {
	Submission Submission
	Policy     *Policy
	Filename   string
	File       []byte
}

// VerifyMiddleware returns HTTP middleware that verifies POST-policy form
// submissions against the bucket in the {bucket} route parameter.
// Bodies larger than maxBodySize are cut off while reading and get 400
// EntityTooLarge; maxBodySize <= 0 disables the cap.
// Malformed forms get 400; authentication and policy failures get 403.
// On success the next handler finds the upload in the context.
func VerifyMiddleware(verifier *Verifier, maxBodySize int64, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := &cappedBody{ReadCloser: r.Body}
			if maxBodySize > 0 {
				body.ReadCloser = http.MaxBytesReader(w, r.Body, maxBodySize)
			}
			r.Body = body

			upload, err := readSubmission(r)
			if r.MultipartForm != nil {
				defer r.MultipartForm.RemoveAll()
			}
			if err != nil && body.exceeded {
				logger.Warn("postpolicy: rejected oversized form", "limit", maxBodySize)
				writeS3Error(w, r, http.StatusBadRequest, "EntityTooLarge", "Your proposed upload exceeds the maximum allowed size")
				return
			}
			if err != nil {
				logger.Warn("postpolicy: rejected malformed form", "err", err)
				writeS3Error(w, r, http.StatusBadRequest, "MalformedPOSTRequest", err.Error())
				return
			}

			policy, err := verifier.Verify(upload.Submission)
			if err != nil {
				handleVerifyError(w, r, logger, err)
				return
			}
			upload.Policy = policy

			ctx := context.WithValue(r.Context(), VerifiedUploadContextKey, upload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// cappedBody records whether the body cap was hit, whatever error the
// multipart parser reports for it
type cappedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}
	return n, err
}

// VerifiedUploadFromContext extracts the verified upload from the request context
// Returns nil if not found
func VerifiedUploadFromContext(ctx context.Context) *VerifiedUpload {
	if upload, ok := ctx.Value(VerifiedUploadContextKey).(*VerifiedUpload); ok {
		return upload
	}
	return nil
}

func readSubmission(r *http.Request) (*VerifiedUpload, error) {
	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile(FieldFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[name] = values[0]
		}
	}

	return &VerifiedUpload{
		Submission: Submission{
			Bucket:   chi.URLParam(r, "bucket"),
			Fields:   fields,
			FileSize: int64(len(data)),
		},
		Filename: header.Filename,
		File:     data,
	}, nil
}

// handleVerifyError writes an S3-style error response for a verification failure
func handleVerifyError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.Info("postpolicy: upload denied", "err", err)
	switch {
	case errors.Is(err, ErrMalformedForm):
		writeS3Error(w, r, http.StatusBadRequest, "InvalidArgument", err.Error())
	case errors.Is(err, ErrUnknownAccessKey):
		writeS3Error(w, r, http.StatusForbidden, "InvalidAccessKeyId", "The AWS Access Key Id you provided does not exist in our records.")
	case errors.Is(err, ErrSignatureMismatch):
		writeS3Error(w, r, http.StatusForbidden, "SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided.")
	case errors.Is(err, ErrPolicyExpired):
		writeS3Error(w, r, http.StatusForbidden, "AccessDenied", "Invalid according to Policy: Policy expired.")
	default:
		writeS3Error(w, r, http.StatusForbidden, "AccessDenied", "Invalid according to Policy: "+err.Error())
	}
}
