// Package tenablesc is a small typed client for the Tenable.sc REST API:
// token login and logout plus field-scoped GET requests.
package tenablesc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/publicsuffix"
)

// TokenHeader carries the session token on every authenticated request.
const TokenHeader = "X-SecurityCenter"

// Options configures transport and TLS for one server.
type Options struct {
	Insecure  bool
	CABundle  string
	Timeout   time.Duration
	UserAgent string
}

// Client calls one Tenable.sc server. It is not safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	host       string
	token      string
}

// NewClient returns a client for https://host:port/rest/.
func NewClient(host string, port int, opts Options) (*Client, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.Insecure {
		tlsCfg.InsecureSkipVerify = true //nolint:gosec // operator asked for --insecure
	} else if opts.CABundle != "" {
		pool, err := loadCABundle(opts.CABundle)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		BaseURL: "https://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/rest/",
		HTTPClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   opts.Timeout,
		},
		UserAgent: opts.UserAgent,
		host:      host,
	}, nil
}

func loadCABundle(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA bundle %s: no certificates found", path)
	}
	return pool, nil
}

// Host returns the server host the client was built for.
func (c *Client) Host() string { return c.host }

// Token returns the current session token ("" when logged out).
func (c *Client) Token() string { return c.token }

// Envelope is the wrapper every Tenable.sc response body uses.
type Envelope struct {
	Type      string          `json:"type"`
	Response  json.RawMessage `json:"response"`
	ErrorCode int             `json:"error_code"`
	ErrorMsg  string          `json:"error_msg"`
	Warnings  []any           `json:"warnings"`
	Timestamp int64           `json:"timestamp"`
}

// LoginRequest is the body for POST /rest/token.
type LoginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	ReleaseSession bool   `json:"releaseSession"`
}

type loginResponse struct {
	Token json.Number `json:"token"`
}

// Login calls POST /rest/token and keeps the returned token for later requests.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(LoginRequest{Username: username, Password: password, ReleaseSession: true})
	if err != nil {
		return fmt.Errorf("marshal login: %w", err)
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "token", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	env, err := readEnvelope(resp)
	if err != nil {
		return &APIError{Path: "token", Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		(resp.StatusCode == http.StatusOK && env.ErrorCode != 0) {
		return &AuthError{Host: c.host, Status: resp.StatusCode, Message: env.ErrorMsg}
	}
	if resp.StatusCode != http.StatusOK {
		return envelopeError("token", resp.StatusCode, env)
	}
	var out loginResponse
	if err := json.Unmarshal(env.Response, &out); err != nil || out.Token == "" {
		return &APIError{Path: "token", Status: resp.StatusCode, Message: "login response carries no token"}
	}
	c.token = out.Token.String()
	return nil
}

// Logout calls DELETE /rest/token and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	resp, err := c.doRequest(ctx, http.MethodDelete, "token", nil, nil)
	c.token = ""
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		env, _ := readEnvelope(resp)
		return envelopeError("token", resp.StatusCode, env)
	}
	return nil
}

// Get calls GET /rest/{path} and returns the full response body after checking the envelope for errors.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectError{Host: c.host, Err: fmt.Errorf("read %s: %w", path, err)}
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Path: path, Status: resp.StatusCode}
		}
		return nil, &APIError{Path: path, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || env.ErrorCode != 0 {
		return nil, envelopeError(path, resp.StatusCode, &env)
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u, err := base.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &ConnectError{Host: c.host, Err: err}
	}
	return resp, nil
}

func readEnvelope(resp *http.Response) (*Envelope, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env Envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return &env, nil
}

func envelopeError(path string, status int, env *Envelope) error {
	e := &APIError{Path: path, Status: status}
	if env != nil {
		e.Code = env.ErrorCode
		e.Message = env.ErrorMsg
	}
	return e
}
