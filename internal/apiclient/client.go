package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/propfront/propfront/internal/domain"
	"github.com/propfront/propfront/internal/observability"
)

const (
	loginPath   = "/api/v1/auth/login"
	logoutPath  = "/api/v1/auth/logout"
	profilePath = "/api/v1/users/profile"

	maxResponseBytes = 1 << 20
)

var (
	ErrEmptyProfile      = errors.New("profile response was empty")
	ErrInvalidCredential = errors.New("credential is not usable")
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// Instrument wraps the transport with otelhttp client spans.
	Instrument bool
	Logger     *slog.Logger
}

// Client talks to the marketplace REST API. It implements both the
// authenticator and the profile service the session store depends on.
type Client struct {
	baseURL   *url.URL
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", opts.BaseURL)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Instrument {
		transport = otelhttp.NewTransport(transport)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: base, transport: transport, timeout: timeout, logger: logger}, nil
}

type loginRequest struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Password    string `json:"password,omitempty"`
	Provider    string `json:"provider,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type loginResponse struct {
	Token       string             `json:"token"`
	AccessToken string             `json:"access_token"`
	User        *domain.RawProfile `json:"user"`
}

func (c *Client) Login(ctx context.Context, cred domain.Credential) (domain.LoginResult, error) {
	body, err := loginBody(cred)
	if err != nil {
		return domain.LoginResult{}, err
	}
	payload, err := c.do(ctx, http.MethodPost, loginPath, "", body)
	if err != nil {
		return domain.LoginResult{}, err
	}
	var resp loginResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return domain.LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	return domain.LoginResult{Token: token, Profile: resp.User}, nil
}

func loginBody(cred domain.Credential) (loginRequest, error) {
	switch cred.Type {
	case domain.CredentialEmail:
		return loginRequest{Email: cred.Email, Password: cred.Password}, nil
	case domain.CredentialPhone:
		return loginRequest{Phone: cred.Phone, Password: cred.Password}, nil
	case domain.CredentialSocial:
		tok := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
		if !tok.Valid() {
			return loginRequest{}, fmt.Errorf("%w: social sign-in needs a provider access token", ErrInvalidCredential)
		}
		return loginRequest{Provider: cred.Provider, AccessToken: tok.AccessToken}, nil
	default:
		return loginRequest{}, fmt.Errorf("%w: unknown credential type %q", ErrInvalidCredential, cred.Type)
	}
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPost, logoutPath, token, nil)
	return err
}

func (c *Client) GetProfile(ctx context.Context, token string) (domain.RawProfile, error) {
	payload, err := c.do(ctx, http.MethodGet, profilePath, token, nil)
	if err != nil {
		return domain.RawProfile{}, err
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return domain.RawProfile{}, ErrEmptyProfile
	}
	var raw domain.RawProfile
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return domain.RawProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	return raw, nil
}

// do sends one request and returns the unwrapped payload of a 2xx response.
// Any other status comes back as *domain.APIError.
func (c *Client) do(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient(token).Do(req)
	if err != nil {
		observability.RecordAPIRequest(ctx, path, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.RecordAPIRequest(ctx, path, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := ParseAPIError(resp.StatusCode, raw)
		c.logger.DebugContext(ctx, "api request rejected",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", req.Header.Get("X-Request-Id"),
		)
		return nil, apiErr
	}
	return unwrapData(raw), nil
}

func (c *Client) httpClient(token string) *http.Client {
	transport := c.transport
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		}
	}
	return &http.Client{Transport: transport, Timeout: c.timeout}
}

// unwrapData returns the value under a top-level "data" key when the
// response uses the envelope shape, else the body unchanged.
func unwrapData(raw []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw
	}
	if data, ok := envelope["data"]; ok {
		return data
	}
	return raw
}
