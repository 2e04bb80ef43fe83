// Package postpolicy builds and verifies browser-style POST-policy uploads.
//
// A POST-policy upload sends a single file to a bucket as a multipart form.
// The form carries a base64 JSON policy and its HMAC-SHA1 signature, so the
// storage service can check the upload without a per-request API call.
//
// # Key Features
//
//   - Validation that reports every missing or invalid option at once
//   - Fixed, ordered policy conditions and form fields
//   - Per-call signing with an injectable clock
//   - Form submission client that surfaces the service's status unchanged
//   - Storage-side verifier and a chi stub bucket endpoint for tests
//
// # Basic Usage
//
//	upload, err := postpolicy.New().Build(postpolicy.UploadRequest{
//	    Host:            "s3.amazonaws.com",
//	    Bucket:          "my-bucket",
//	    AccessKeyID:     accessKeyID,
//	    SecretAccessKey: secretAccessKey,
//	    Path:            "uploads/",
//	    Filename:        "a.png",
//	    ContentType:     "image/png",
//	    Data:            data,
//	})
//	if err != nil {
//	    // *OptionError wrapping ErrMissingOption or ErrInvalidOption
//	}
//
//	resp, err := postpolicy.NewClient().Submit(ctx, upload)
//	var statusErr *postpolicy.StatusError
//	if errors.As(err, &statusErr) {
//	    // e.g. 403 Forbidden from the service, resp == statusErr.Response
//	}
//
// # Form Fields
//
// Fields are written in this order: key, policy, Content-Type, signature,
// AWSAccessKeyId, acl, file.
//
// # Browser Uploads
//
// Handlers.Routes serves GET /policy, returning the signed text fields so a
// browser can post the file itself:
//
//	h := postpolicy.NewHandlers(postpolicy.New(), template)
//	http.Handle("/", h.Routes())
package postpolicy
