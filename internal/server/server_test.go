package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dualstore/internal/auth"
	"dualstore/internal/ledger"
	"dualstore/internal/storage"
	"dualstore/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type failingObjectStore struct{}

func (failingObjectStore) Put(ctx context.Context, localPath string, bucket string, key string) (string, error) {
	return "", errors.New("InvalidAccessKeyId: secret detail")
}

// staticContentStore returns a fixed address regardless of cancellation.
type staticContentStore struct {
	address string
}

func (s staticContentStore) Put(ctx context.Context, localPath string) (string, error) {
	return s.address, nil
}

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	tempDir string
}

type testOptions struct {
	objects  storage.ObjectStore
	contents storage.ContentStore
	maxSize  int64
	history  bool
	authn    auth.AuthEngine
	registry *prometheus.Registry
}

// newTestServer creates a Server backed by local storage adapters.
func newTestServer(t *testing.T, opts testOptions) testEnv {
	t.Helper()

	dataDir := t.TempDir()
	tempDir := t.TempDir()

	if opts.objects == nil {
		opts.objects = storage.NewLocalObjectStore(filepath.Join(dataDir, "objects"))
	}
	if opts.contents == nil {
		opts.contents = storage.NewLocalContentStore(filepath.Join(dataDir, "content"))
	}
	if opts.maxSize == 0 {
		opts.maxSize = 1000
	}
	if opts.registry == nil {
		opts.registry = prometheus.NewRegistry()
	}

	observer, err := upload.NewPrometheusObserver(opts.registry)
	require.NoError(t, err)

	serviceOpts := []upload.ServiceOption{upload.WithObserver(observer)}
	cfg := Config{Authenticator: opts.authn, Gatherer: opts.registry}

	if opts.history {
		l, err := ledger.Open(context.Background(), filepath.Join(dataDir, "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })

		serviceOpts = append(serviceOpts, upload.WithRecorder(l))
		cfg.History = l
	}

	replicator := upload.NewReplicator(opts.objects, opts.contents, observer)
	cfg.Service = upload.NewService(upload.Options{
		MaxFileSize: opts.maxSize,
		TempDir:     tempDir,
		Bucket:      "test-bucket",
		KeyPrefix:   "uploads",
	}, replicator, serviceOpts...)

	srv, err := NewServer(cfg)
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return testEnv{srv: srv, http: httpSrv, tempDir: tempDir}
}

func multipartRequest(t *testing.T, url string, field string, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		w, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("note", "attached"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doRequest(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeError(t *testing.T, body []byte) errorDetail {
	t.Helper()

	var out errorBody
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out.Error
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "expected transient directory to be empty")
}

func TestUploadSuccess(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{})

	resp, body := doRequest(t, multipartRequest(t, env.http.URL, "file", "hello.txt", []byte("0123456789")))
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 4)
	require.Equal(t, "hello.txt", out["filename"])
	require.EqualValues(t, 10, out["size"])
	require.Contains(t, out["s3_url"], "_hello.txt")
	require.Len(t, out["ipfs_hash"], 64)

	requireEmptyDir(t, env.tempDir)
}

func TestUploadSameContentTwice(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{})

	var results []upload.Response
	for i := 0; i < 2; i++ {
		resp, body := doRequest(t, multipartRequest(t, env.http.URL, "file", "same.txt", []byte("identical")))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out upload.Response
		require.NoError(t, json.Unmarshal(body, &out))
		results = append(results, out)
	}

	require.NotEqual(t, results[0].ObjectLocator, results[1].ObjectLocator)
	require.Equal(t, results[0].ContentAddress, results[1].ContentAddress)
}

func TestUploadNoFile(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{})

	resp, body := doRequest(t, multipartRequest(t, env.http.URL, "", "", nil))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, upload.KindNoFile, decodeError(t, body).Code)

	requireEmptyDir(t, env.tempDir)
}

func TestUploadNotMultipart(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{})

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/upload", strings.NewReader(`{"file":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, upload.KindMultipart, decodeError(t, body).Code)
}

func TestUploadTooLarge(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{maxSize: 1000})

	resp, body := doRequest(t, multipartRequest(t, env.http.URL, "file", "big.bin", bytes.Repeat([]byte("x"), 2000)))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Equal(t, upload.KindSizeLimitExceeded, decodeError(t, body).Code)

	requireEmptyDir(t, env.tempDir)
}

func TestUploadBeyondBodyCap(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{maxSize: 10})

	// A leading field larger than the multipart allowance trips the request
	// body cap before the file part is reached.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("padding", strings.Repeat("x", multipartOverhead+100)))
	w, err := mw.CreateFormFile("file", "small.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("tiny"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, upload.KindSizeLimitExceeded, decodeError(t, rec.Body.Bytes()).Code)

	requireEmptyDir(t, env.tempDir)
}

func TestUploadBackendFailureHidesCause(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{objects: failingObjectStore{}, contents: staticContentStore{address: "QmStatic"}, history: true})

	resp, body := doRequest(t, multipartRequest(t, env.http.URL, "file", "hello.txt", []byte("hello")))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	detail := decodeError(t, body)
	require.Equal(t, upload.KindObjectStore, detail.Code)
	require.NotContains(t, detail.Message, "secret detail")

	requireEmptyDir(t, env.tempDir)

	// The surviving content-store write is recorded as partial.
	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/uploads", nil)
	require.NoError(t, err)
	resp, body = doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Uploads []ledger.Entry `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Uploads, 1)
	require.Equal(t, upload.StatusPartial, listing.Uploads[0].Status)
	require.Equal(t, upload.KindObjectStore, listing.Uploads[0].ErrorKind)
	require.Equal(t, "QmStatic", listing.Uploads[0].ContentAddress)
}

func TestListUploads(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{history: true})

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		resp, _ := doRequest(t, multipartRequest(t, env.http.URL, "file", name, []byte(name)))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/uploads?limit=2", nil)
	require.NoError(t, err)
	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Uploads []ledger.Entry `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Uploads, 2)
	require.Equal(t, "c.txt", listing.Uploads[0].Filename)
	require.Equal(t, upload.StatusSucceeded, listing.Uploads[0].Status)

	req, err = http.NewRequest(http.MethodGet, env.http.URL+"/uploads?limit=abc", nil)
	require.NoError(t, err)
	resp, _ = doRequest(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListUploadsDisabled(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{})

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/uploads", nil)
	require.NoError(t, err)
	resp, _ := doRequest(t, req)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{authn: auth.NewTokenAuthEngine("token")})

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/healthz", nil)
	require.NoError(t, err)
	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{})

	resp, _ := doRequest(t, multipartRequest(t, env.http.URL, "file", "hello.txt", []byte("hello")))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `dualstore_upload_requests_total{outcome="succeeded"} 1`)
	require.Contains(t, string(body), "dualstore_replication_duration_seconds")
}

func TestAuthentication(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, testOptions{
		history: true,
		authn: auth.NewCompoundAuthEngine(
			auth.NewBasicAuthEngine("admin", "s3cret"),
			auth.NewTokenAuthEngine("token-123"),
		),
	})

	resp, body := doRequest(t, multipartRequest(t, env.http.URL, "file", "hello.txt", []byte("hello")))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", decodeError(t, body).Code)
	requireEmptyDir(t, env.tempDir)

	req := multipartRequest(t, env.http.URL, "file", "hello.txt", []byte("hello"))
	req.SetBasicAuth("admin", "s3cret")
	resp, _ = doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = multipartRequest(t, env.http.URL, "file", "hello.txt", []byte("hello"))
	req.Header.Set("Authorization", "Bearer token-123")
	resp, _ = doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/uploads", nil)
	require.NoError(t, err)
	resp, _ = doRequest(t, req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRecovererReturnsJSON(t *testing.T) {
	t.Parallel()

	handler := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, upload.KindInternal, decodeError(t, rec.Body.Bytes()).Code)
}

func TestNewServerRequiresService(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{})
	require.Error(t, err)
}

func TestStatusForKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, statusForKind(upload.KindNoFile))
	require.Equal(t, http.StatusBadRequest, statusForKind(upload.KindMultipart))
	require.Equal(t, http.StatusRequestEntityTooLarge, statusForKind(upload.KindSizeLimitExceeded))
	for _, kind := range []string{upload.KindIO, upload.KindObjectStore, upload.KindContentStore, upload.KindUpload, upload.KindInternal} {
		require.Equal(t, http.StatusInternalServerError, statusForKind(kind))
	}
}

func TestResponseRecorderCapturesErrorResponse(t *testing.T) {
	t.Parallel()

	rec := &responseRecorder{ResponseWriter: httptest.NewRecorder()}
	writeError(rec, http.StatusRequestEntityTooLarge, upload.KindSizeLimitExceeded, "file exceeds maximum size of 10 bytes")

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.status)
	require.Equal(t, upload.KindSizeLimitExceeded, rec.errorCode)
	require.Positive(t, rec.written)

	entry := requestLog{StatusCode: rec.status}
	require.Equal(t, slog.LevelWarn, entry.level())
	require.Equal(t, slog.LevelError, requestLog{StatusCode: http.StatusInternalServerError}.level())
	require.Equal(t, slog.LevelInfo, requestLog{StatusCode: http.StatusOK}.level())
}

func TestLogRequestPassesThroughResponse(t *testing.T) {
	t.Parallel()

	handler := LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := w.(errorCodeSetter)
		require.True(t, ok, "handlers should receive the recording writer")
		writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
