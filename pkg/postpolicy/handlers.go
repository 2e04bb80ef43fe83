package postpolicy

import (
	"encoding/xml"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/postform/pkg/utils"
)

// Handlers serves signed upload forms to browsers and, when a Verifier and
// ObjectStore are configured, a stub POST-policy bucket endpoint.
type Handlers struct {
	signer    *Signer
	template  UploadRequest
	verifier  *Verifier
	store     ObjectStore
	tokenAuth *jwtauth.JWTAuth
	policyMW  []func(http.Handler) http.Handler
	maxBody   int64
	logger    *slog.Logger
}

// HandlersOption is a functional option for configuring Handlers
type HandlersOption func(*Handlers)

// WithStubBucket enables POST /{bucket}, verifying submissions and storing accepted objects
func WithStubBucket(verifier *Verifier, store ObjectStore) HandlersOption {
	return func(h *Handlers) {
		h.verifier = verifier
		h.store = store
	}
}

// WithTokenAuth requires a valid JWT bearer token on GET /policy
func WithTokenAuth(tokenAuth *jwtauth.JWTAuth) HandlersOption {
	return func(h *Handlers) {
		h.tokenAuth = tokenAuth
	}
}

// WithPolicyMiddleware adds middleware in front of GET /policy only
func WithPolicyMiddleware(mw ...func(http.Handler) http.Handler) HandlersOption {
	return func(h *Handlers) {
		h.policyMW = append(h.policyMW, mw...)
	}
}

// WithMaxBodySize caps the request body accepted by POST /{bucket}.
// The default is the template's max file size plus FormOverhead.
func WithMaxBodySize(n int64) HandlersOption {
	return func(h *Handlers) {
		h.maxBody = n
	}
}

// WithHandlersLogger sets the handlers logger
func WithHandlersLogger(logger *slog.Logger) HandlersOption {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// NewHandlers creates handlers that presign forms from template.
// template carries the host, bucket, credentials, size cap and key prefix;
// Filename and ContentType come from each request.
func NewHandlers(signer *Signer, template UploadRequest, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		signer:   signer,
		template: template,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.maxBody == 0 {
		h.maxBody = template.maxFileSize() + FormOverhead
	}
	return h
}

// Routes returns the router:
//
//	GET  /policy?filename=&contentType=  signed form fields as JSON
//	POST /{bucket}                        stub bucket endpoint (WithStubBucket only)
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.tokenAuth != nil {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)
		}
		r.Use(h.policyMW...)
		r.Get("/policy", h.HandlePolicy)
	})

	if h.verifier != nil && h.store != nil {
		r.With(VerifyMiddleware(h.verifier, h.maxBody, h.logger)).Post("/{bucket}", h.HandleBucketPost)
	}

	return r
}

// PolicyResponse is the body of GET /policy
type PolicyResponse struct {
	URL    string            `json:"url"`
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
	// Order lists the field names in submission order, file last
	Order []string `json:"order"`
}

// ErrorResponse is the JSON error body of GET /policy
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// HandlePolicy handles GET /policy. The file itself never reaches this
// service; the browser posts it straight to the returned URL.
func (h *Handlers) HandlePolicy(w http.ResponseWriter, r *http.Request) {
	contentType := r.URL.Query().Get("contentType")
	filename := utils.SanitizeFilename(r.URL.Query().Get("filename"))
	if filename == "" {
		filename = generatedFilename(contentType)
	}

	req := h.template
	req.Filename = filename
	req.ContentType = contentType
	req.Data = nil

	upload, err := h.signer.Presign(req)
	if err != nil {
		var optErr *OptionError
		if errors.As(err, &optErr) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{
				Error:   "VALIDATION_ERROR",
				Message: optErr.Error(),
				Fields:  optErr.Fields,
			})
			return
		}
		h.logger.Error("failed to presign upload", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "INTERNAL_ERROR", Message: "failed to presign upload"})
		return
	}

	render.JSON(w, r, PolicyResponse{
		URL:    upload.URL,
		Key:    upload.Key,
		Fields: upload.Values(),
		Order:  FormFieldOrder,
	})
}

// HandleBucketPost stores an upload verified by VerifyMiddleware and answers
// 204 No Content, as the storage service does by default
func (h *Handlers) HandleBucketPost(w http.ResponseWriter, r *http.Request) {
	upload := VerifiedUploadFromContext(r.Context())
	if upload == nil {
		writeS3Error(w, r, http.StatusForbidden, "AccessDenied", "upload was not verified")
		return
	}

	sub := upload.Submission
	key, _ := sub.Field(FieldKey)
	contentType, _ := sub.Field(FieldContentType)
	acl, _ := sub.Field(FieldACL)

	obj := Object{
		Bucket:      sub.Bucket,
		Key:         key,
		ContentType: contentType,
		ACL:         acl,
		Data:        upload.File,
	}
	if err := h.store.Put(r.Context(), obj); err != nil {
		h.logger.Error("failed to store upload", "bucket", sub.Bucket, "key", key, "err", err)
		writeS3Error(w, r, http.StatusInternalServerError, "InternalError", "failed to store object")
		return
	}

	h.logger.Info("stored upload", "bucket", sub.Bucket, "key", key, "size", len(upload.File))
	w.Header().Set("x-amz-request-id", uuid.NewString())
	w.WriteHeader(http.StatusNoContent)
}

// s3Error mirrors the XML error document of the storage service
type s3Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

func writeS3Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := uuid.NewString()
	w.Header().Set("x-amz-request-id", requestID)
	render.Status(r, status)
	render.XML(w, r, s3Error{Code: code, Message: message, RequestID: requestID})
}

// generatedFilename names an upload whose client supplied no filename
func generatedFilename(contentType string) string {
	name := uuid.NewString()
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		name += exts[0]
	}
	return name
}
