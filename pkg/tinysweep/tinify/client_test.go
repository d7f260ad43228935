package tinify_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/tinify"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/tinify/tinifytest"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

const testKey = "secret"

func newClient(t *testing.T, endpoint string) *tinify.Client {
	t.Helper()
	c, err := tinify.New(tinify.Options{Key: testKey, Endpoint: endpoint, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := tinify.New(tinify.Options{Key: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Equal(t, "missing API key", err.Error())
}

func TestNew_DefaultEndpoint(t *testing.T) {
	c, err := tinify.New(tinify.Options{Key: testKey})
	require.NoError(t, err)
	assert.Equal(t, tinify.DefaultEndpoint, c.Endpoint())
}

func TestCompress_Success(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	input := []byte("0123456789abcdef")
	res, err := newClient(t, srv.Endpoint()).Compress(context.Background(), "icons/logo.png", input)
	require.NoError(t, err)

	assert.Equal(t, tinifytest.Shrink(input), res.Content)
	assert.Equal(t, 1, res.CompressionCount)
	assert.Equal(t, int64(16), res.InputSize)
	assert.Equal(t, int64(8), res.OutputSize)
	assert.InDelta(t, 0.5, res.Ratio(), 0.0001)
	assert.True(t, strings.HasPrefix(res.URL, srv.URL+"/output/"))

	assert.Equal(t, 1, srv.Uploads())
	assert.Equal(t, 1, srv.Downloads())
	assert.Equal(t, [][]byte{input}, srv.Bodies())
}

func TestCompress_UploadHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			got = r.Header.Clone()
			_, _ = w.Write([]byte(`{"output":{"url":"http://` + r.Host + `/out"}}`))
			return
		}
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL+"/shrink").Compress(context.Background(), "a.png", []byte("raw"))
	require.NoError(t, err)

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("api:"+testKey))
	assert.Equal(t, wantAuth, got.Get("Authorization"))
	assert.Equal(t, "application/x-www-form-urlencoded", got.Get("Content-Type"))
	assert.Equal(t, "*/*", got.Get("Accept"))
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
}

func TestCompress_MissingCompressionCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"output":{"url":"http://` + r.Host + `/out"}}`))
			return
		}
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL).Compress(context.Background(), "a.png", []byte("raw"))
	require.NoError(t, err)
	assert.Zero(t, res.CompressionCount)
}

func TestCompress_ServiceErrors(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{code: "Unauthorized", want: "Unauthorized: The request was not authorized with a valid API key for image.png"},
		{code: "InputMissing", want: "InputMissing: The file that was uploaded is empty or no data was posted for image.png"},
		{code: "BadSignature", want: "BadSignature: The file was not recognized as a PNG or JPEG file. It may be corrupted or it is a different file type for image.png"},
		{code: "UnsupportedFile", want: "UnsupportedFile: The file was recognized as a PNG or JPEG file, but is not supported for image.png"},
		{code: "DecodeError", want: "DecodeError: The file had a valid PNG or JPEG signature, but could not be decoded, most likely corrupt for image.png"},
		{code: "TooManyRequests", want: "TooManyRequests: Your monthly upload limit has been exceeded for image.png"},
		{code: "InternalServerError", want: "InternalServerError: An internal error occurred during compression for image.png"},
		{code: "Fatal", want: "Fatal: unknown for image.png"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := tinifytest.NewServer(testKey)
			defer srv.Close()
			srv.ErrorCode = tt.code

			_, err := newClient(t, srv.Endpoint()).Compress(context.Background(), "image.png", []byte("raw"))
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.ErrorIs(t, err, types.ErrService)
			assert.Zero(t, srv.Downloads(), "no download after a failed upload")

			var te *types.Error
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, "image.png", te.Path)
		})
	}
}

func TestCompress_WrongKeyIsUnauthorized(t *testing.T) {
	srv := tinifytest.NewServer("other-key")
	defer srv.Close()

	_, err := newClient(t, srv.Endpoint()).Compress(context.Background(), "image.png", []byte("raw"))
	require.Error(t, err)
	assert.Equal(t, "Unauthorized: The request was not authorized with a valid API key for image.png", err.Error())
}

func TestExplain(t *testing.T) {
	assert.Equal(t, "Your monthly upload limit has been exceeded", tinify.Explain(tinify.CodeTooManyRequests))
	assert.Equal(t, "unknown", tinify.Explain("Nope"))
}

func TestCompress_NoURL(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()
	srv.OmitURL = true

	_, err := newClient(t, srv.Endpoint()).Compress(context.Background(), "image.png", []byte("raw"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Equal(t, "no URL returned from API for image.png", err.Error())
	assert.Zero(t, srv.Downloads())
}

func TestCompress_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Compress(context.Background(), "image.png", []byte("raw"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Contains(t, err.Error(), "invalid upload response for image.png")
	assert.Contains(t, err.Error(), "status 502")
}

type failingClient struct{ err error }

func (f failingClient) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestCompress_TransportFailure(t *testing.T) {
	cause := errors.New("connection refused")
	c, err := tinify.New(tinify.Options{Key: testKey, HTTPClient: failingClient{err: cause}})
	require.NoError(t, err)

	_, err = c.Compress(context.Background(), "image.png", []byte("raw"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "initial upload request failed for image.png: connection refused", err.Error())
}

func TestCompress_DownloadErrors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := tinifytest.NewServer(testKey)
		defer srv.Close()
		srv.DownloadStatus = http.StatusNotFound

		_, err := newClient(t, srv.Endpoint()).Compress(context.Background(), "image.png", []byte("raw"))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrDownload)
		assert.Contains(t, err.Error(), "download failed for "+srv.URL+"/output/1 with error: unexpected status 404")

		var te *types.Error
		require.True(t, errors.As(err, &te))
		assert.Equal(t, srv.URL+"/output/1", te.URL)
		assert.Equal(t, "image.png", te.Path)
	})

	t.Run("empty body", func(t *testing.T) {
		srv := tinifytest.NewServer(testKey)
		defer srv.Close()
		srv.EmptyDownload = true

		_, err := newClient(t, srv.Endpoint()).Compress(context.Background(), "image.png", []byte("raw"))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrDownload)
		assert.Contains(t, err.Error(), "no image returned from URL")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"output":{"url":"http://127.0.0.1:1/out"}}`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).Compress(context.Background(), "image.png", []byte("raw"))
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrDownload)
		assert.True(t, strings.HasPrefix(err.Error(), "download failed for http://127.0.0.1:1/out with error: "))
	})
}

func TestCompress_CancelledContext(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(t, srv.Endpoint()).Compress(ctx, "image.png", []byte("raw"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, types.ErrTransport)
}

// orderingClient records the method of each request it forwards.
type orderingClient struct {
	mu      sync.Mutex
	methods []string
	next    *http.Client
}

func (o *orderingClient) Do(req *http.Request) (*http.Response, error) {
	o.mu.Lock()
	o.methods = append(o.methods, req.Method)
	o.mu.Unlock()
	return o.next.Do(req)
}

func TestCompress_UploadThenDownload(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	rec := &orderingClient{next: srv.Client()}
	c, err := tinify.New(tinify.Options{Key: testKey, Endpoint: srv.Endpoint(), HTTPClient: rec})
	require.NoError(t, err)

	_, err = c.Compress(context.Background(), "a.png", []byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodPost, http.MethodGet}, rec.methods)
}

func TestCompress_ReadsWholeBody(t *testing.T) {
	payload := strings.Repeat("z", 1<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = w.Write([]byte(`{"output":{"url":"http://` + r.Host + `/out"}}`))
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL).Compress(context.Background(), "big.png", []byte("raw"))
	require.NoError(t, err)
	assert.Len(t, res.Content, 1<<20)
}
