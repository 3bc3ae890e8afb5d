package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/model"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

const (
	DefaultHost = "http://localhost:8000"

	defaultTimeout = 30 * time.Second
)

// Client talks to the chiliseed REST API. It satisfies interfaces.APIClient.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken sets the API token sent as "Authorization: Token <token>"
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an API client for host. An empty host falls back to DefaultHost.
func NewClient(host string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current API token
func (c *Client) Token() string {
	return c.token
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AuthToken string `json:"auth_token"`
}

// Login exchanges credentials for an API token. The token is kept for later requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", &loginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", goerr.Wrap(err, "failed to login", goerr.V("email", email))
	}
	if resp.AuthToken == "" {
		return "", goerr.New("login response has no token", goerr.V("email", email))
	}

	c.token = resp.AuthToken
	return resp.AuthToken, nil
}

type versionRequest struct {
	Version string `json:"version"`
}

// LaunchWorker requests a build worker for the service at version
func (c *Client) LaunchWorker(ctx context.Context, serviceSlug, version string) (*model.LaunchWorkerResponse, error) {
	var resp model.LaunchWorkerResponse
	if err := c.do(ctx, http.MethodPost, "/api/service/"+url.PathEscape(serviceSlug)+"/build", &versionRequest{Version: version}, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to launch build worker",
			goerr.V("service", serviceSlug),
			goerr.V("version", version),
		)
	}
	return &resp, nil
}

// GetWorker returns details of a build worker, including its private key
func (c *Client) GetWorker(ctx context.Context, workerSlug string) (*model.Worker, error) {
	var resp model.Worker
	if err := c.do(ctx, http.MethodGet, "/api/worker/"+url.PathEscape(workerSlug), nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to get build worker", goerr.V("worker", workerSlug))
	}
	return &resp, nil
}

// DeployService triggers a deploy of the service at version
func (c *Client) DeployService(ctx context.Context, serviceSlug, version string) (*model.DeployResponse, error) {
	var resp model.DeployResponse
	if err := c.do(ctx, http.MethodPost, "/api/service/"+url.PathEscape(serviceSlug)+"/deploy", &versionRequest{Version: version}, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to deploy service",
			goerr.V("service", serviceSlug),
			goerr.V("version", version),
		)
	}
	return &resp, nil
}

// GetExecutionLog returns the current state of an execution job
func (c *Client) GetExecutionLog(ctx context.Context, slug string) (*model.ExecutionLog, error) {
	var resp model.ExecutionLog
	if err := c.do(ctx, http.MethodGet, "/api/execution/status/"+url.PathEscape(slug), nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to get execution status", goerr.V("log", slug))
	}
	return &resp, nil
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.host + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("url", endpoint))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	logging.From(ctx).Debug("API request", "method", method, "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send request", goerr.V("method", method), goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerr.Wrap(err, "failed to read response body", goerr.V("url", endpoint))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			msg = e.Detail
		}
		return goerr.New(msg,
			goerr.V("status", resp.StatusCode),
			goerr.V("method", method),
			goerr.V("url", endpoint),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		// the body may carry key material, so only its size is kept
		return goerr.Wrap(err, "failed to decode response body",
			goerr.V("url", endpoint),
			goerr.V("body_size", len(data)),
		)
	}
	return nil
}
