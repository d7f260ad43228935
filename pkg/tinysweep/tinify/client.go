// Package tinify is the client for the TinyPNG compression service. A
// compression is two strictly ordered requests: the raw image is POSTed to
// the shrink endpoint, and the compressed image is fetched from the URL the
// service returns.
package tinify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-http-utils/headers"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// DefaultEndpoint is the production shrink endpoint.
const DefaultEndpoint = "https://api.tinypng.com/shrink"

// DefaultTimeout bounds each request made by the built-in HTTP client.
const DefaultTimeout = 60 * time.Second

// HeaderCompressionCount carries the number of compressions used this month.
const HeaderCompressionCount = "Compression-Count"

// HTTPClient executes requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Compressor compresses one image. *Client implements it.
type Compressor interface {
	Compress(ctx context.Context, relPath string, content []byte) (*Result, error)
}

// Options configures a Client.
type Options struct {
	// Key is the API key. Required.
	Key string

	// Endpoint overrides DefaultEndpoint.
	Endpoint string

	// Timeout for the built-in HTTP client. Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient replaces the built-in client.
	HTTPClient HTTPClient
}

// Result is a successful compression.
type Result struct {
	// Content is the compressed image.
	Content []byte

	// URL is where the compressed image was downloaded from.
	URL string

	// CompressionCount is the Compression-Count header, 0 when absent.
	CompressionCount int

	InputSize  int64
	OutputSize int64
}

// Ratio returns OutputSize/InputSize, or 1 when InputSize is zero.
func (r *Result) Ratio() float64 {
	if r.InputSize == 0 {
		return 1
	}
	return float64(r.OutputSize) / float64(r.InputSize)
}

// Client talks to the compression service.
type Client struct {
	endpoint string
	auth     string
	http     HTTPClient
	logger   *logging.Logger
}

// New returns a client. A missing key is a configuration error.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Key) == "" {
		return nil, types.ConfigError("missing API key")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint: endpoint,
		auth:     "Basic " + base64.StdEncoding.EncodeToString([]byte("api:"+opts.Key)),
		http:     httpClient,
		logger:   logging.Get("tinify"),
	}, nil
}

// Endpoint returns the shrink endpoint in use.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// shrinkResponse is the upload response body.
type shrinkResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Input   struct {
		Size int64  `json:"size"`
		Type string `json:"type"`
	} `json:"input"`
	Output struct {
		Size  int64   `json:"size"`
		Type  string  `json:"type"`
		Ratio float64 `json:"ratio"`
		URL   string  `json:"url"`
	} `json:"output"`
}

// Compress uploads content and downloads the compressed result.
// Errors are *types.Error of kind KindService, KindTransport or KindDownload.
func (c *Client) Compress(ctx context.Context, relPath string, content []byte) (*Result, error) {
	start := time.Now()

	shrink, count, err := c.upload(ctx, relPath, content)
	if err != nil {
		return nil, err
	}

	data, err := c.download(ctx, relPath, shrink.Output.URL)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Content:          data,
		URL:              shrink.Output.URL,
		CompressionCount: count,
		InputSize:        int64(len(content)),
		OutputSize:       int64(len(data)),
	}
	c.logger.Debug("compressed",
		"path", relPath,
		"input", res.InputSize,
		"output", res.OutputSize,
		"ratio", fmt.Sprintf("%.3f", res.Ratio()),
		"count", count,
		"elapsed", time.Since(start))
	return res, nil
}

func (c *Client) upload(ctx context.Context, relPath string, content []byte) (*shrinkResponse, int, error) {
	transportErr := func(msg string, cause error) error {
		return &types.Error{Kind: types.KindTransport, Path: relPath, Message: msg, Err: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(content))
	if err != nil {
		return nil, 0, transportErr("building upload request failed", err)
	}
	req.Header.Set(headers.Authorization, c.auth)
	req.Header.Set(headers.ContentType, "application/x-www-form-urlencoded")
	req.Header.Set(headers.Accept, "*/*")
	req.Header.Set(headers.CacheControl, "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, transportErr("initial upload request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, transportErr("reading upload response failed", err)
	}

	var shrink shrinkResponse
	if err := json.Unmarshal(body, &shrink); err != nil {
		return nil, 0, transportErr("invalid upload response",
			fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}

	if shrink.Error != "" {
		c.logger.Debug("service rejected upload",
			"path", relPath, "code", shrink.Error, "status", resp.StatusCode, "message", shrink.Message)
		return nil, 0, ServiceError(shrink.Error, relPath)
	}

	if shrink.Output.URL == "" {
		return nil, 0, transportErr("no URL returned from API", nil)
	}

	count, _ := strconv.Atoi(resp.Header.Get(HeaderCompressionCount))
	return &shrink, count, nil
}

var errNoImage = errors.New("no image returned from URL")

func (c *Client) download(ctx context.Context, relPath, url string) ([]byte, error) {
	downloadErr := func(cause error) error {
		return &types.Error{Kind: types.KindDownload, Path: relPath, URL: url, Err: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, downloadErr(err)
	}
	req.Header.Set(headers.Authorization, c.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, downloadErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, downloadErr(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, downloadErr(err)
	}
	if len(data) == 0 {
		return nil, downloadErr(errNoImage)
	}
	return data, nil
}
