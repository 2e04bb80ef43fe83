package postpolicy_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/postform/pkg/postpolicy"
	"github.com/tendant/postform/pkg/postpolicy/storage/memory"
)

// newStubBucket serves the stub bucket endpoint with one known key pair
func newStubBucket(t *testing.T) (*httptest.Server, *memory.Backend) {
	t.Helper()
	store := memory.New()
	verifier := postpolicy.NewVerifier(postpolicy.StaticCredentials{"AKIDVALID": "valid-secret"})
	h := postpolicy.NewHandlers(postpolicy.New(), postpolicy.UploadRequest{},
		postpolicy.WithStubBucket(verifier, store))

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func requestFor(srv *httptest.Server) postpolicy.UploadRequest {
	req := validRequest()
	req.Protocol = "http"
	req.Host = strings.TrimPrefix(srv.URL, "http://")
	return req
}

func TestClient_SubmitFieldOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		gotNames []string
		gotFile  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/test-bucket", r.URL.Path)

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "multipart/form-data", mediaType)

		mu.Lock()
		defer mu.Unlock()
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			gotNames = append(gotNames, part.FormName())
			if part.FormName() == "file" {
				data, _ := io.ReadAll(part)
				gotFile = string(data)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	upload, err := postpolicy.Build(requestFor(srv))
	require.NoError(t, err)

	resp, err := postpolicy.NewClient().Submit(context.Background(), upload)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, resp.OK())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, postpolicy.FormFieldOrder, gotNames)
	assert.Equal(t, "plain text\n", gotFile)
}

// TestClient_ForbiddenPropagated is the end-to-end scenario: an unknown key
// yields 403 Forbidden, passed to the caller unchanged
func TestClient_ForbiddenPropagated(t *testing.T) {
	srv, store := newStubBucket(t)

	resp, err := postpolicy.NewClient().Upload(context.Background(), postpolicy.New(), requestFor(srv))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Forbidden", resp.StatusText)
	assert.Equal(t, "403 Forbidden", resp.Status)
	assert.Contains(t, string(resp.Body), "InvalidAccessKeyId")

	var statusErr *postpolicy.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Same(t, resp, statusErr.Response)
	assert.Empty(t, store.Keys("test-bucket"))
}

func TestClient_UploadAccepted(t *testing.T) {
	srv, store := newStubBucket(t)

	req := requestFor(srv)
	req.AccessKeyID = "AKIDVALID"
	req.SecretAccessKey = "valid-secret"
	req.Path = "uploads/"

	resp, err := postpolicy.NewClient().Upload(context.Background(), postpolicy.New(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("x-amz-request-id"))

	obj, err := store.Get(context.Background(), "test-bucket", "uploads/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, "public-read", obj.ACL)
	assert.Equal(t, []byte("plain text\n"), obj.Data)
}

func TestClient_NoRequestOnValidationFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	req := requestFor(srv)
	req.SecretAccessKey = ""
	req.Data = nil

	resp, err := postpolicy.NewClient().Upload(context.Background(), postpolicy.New(), req)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, postpolicy.ErrMissingOption))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	req := requestFor(srv)
	srv.Close()

	resp, err := postpolicy.NewClient().Upload(context.Background(), postpolicy.New(), req)
	require.Error(t, err)
	assert.Nil(t, resp)

	var statusErr *postpolicy.StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := postpolicy.NewClient().Upload(ctx, postpolicy.New(), requestFor(srv))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestClient_Progress(t *testing.T) {
	var total atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		total.Store(r.ContentLength)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var last atomic.Int64
	client := postpolicy.NewClient(postpolicy.WithProgress(func(n int64) { last.Store(n) }))

	_, err := client.Upload(context.Background(), postpolicy.New(), requestFor(srv))
	require.NoError(t, err)
	assert.Greater(t, last.Load(), int64(0))
	assert.Equal(t, total.Load(), last.Load())
}
