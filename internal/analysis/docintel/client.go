package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"docintel-batch/internal/analysis"
)

const (
	defaultModel      = "prebuilt-read"
	defaultAPIVersion = "2024-11-30"
	defaultTimeout    = 30 * time.Second
	tokenScope        = "https://cognitiveservices.azure.com/.default"
	maxResultBytes    = 512 << 20
)

// tokenURLFormat is a var so tests can point token requests at an httptest server.
var tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// Options configures the Document Intelligence client. Either APIKey or the
// TenantID/ClientID/ClientSecret triple must be set.
type Options struct {
	Endpoint     string
	Model        string
	APIVersion   string
	APIKey       string
	TenantID     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client implements analysis.Client against the Document Intelligence REST API,
// requesting searchable PDF output for every analyze operation.
type Client struct {
	endpoint   *url.URL
	model      string
	apiVersion string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a new Document Intelligence client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if raw == "" {
		return nil, fmt.Errorf("DOCINTEL_ENDPOINT is required")
	}
	endpoint, err := url.Parse(raw)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid DOCINTEL_ENDPOINT %q", raw)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	var httpClient *http.Client
	switch {
	case strings.TrimSpace(opts.ClientID) != "":
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     fmt.Sprintf(tokenURLFormat, opts.TenantID),
			Scopes:       []string{tokenScope},
		}
		base := &http.Client{Timeout: timeout}
		httpClient = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
		httpClient.Timeout = timeout
	case strings.TrimSpace(opts.APIKey) != "":
		httpClient = &http.Client{Timeout: timeout}
	default:
		return nil, fmt.Errorf("DOCINTEL_KEY or DOCINTEL_CLIENT_ID is required")
	}

	return &Client{
		endpoint:   endpoint,
		model:      model,
		apiVersion: apiVersion,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
	}, nil
}

// Submit starts an analyze operation and returns its Operation-Location URL as the handle.
func (c *Client) Submit(ctx context.Context, document []byte) (analysis.OperationHandle, error) {
	if len(document) == 0 {
		return "", analysis.NewServiceError("submit", 0, "EmptyDocument", "document is empty", analysis.ErrInvalidDocument, 0)
	}

	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + "/documentintelligence/documentModels/" + url.PathEscape(c.model) + ":analyze"
	q := url.Values{}
	q.Set("api-version", c.apiVersion)
	q.Set("output", "pdf")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", readServiceError("submit", resp)
	}
	location := strings.TrimSpace(resp.Header.Get("Operation-Location"))
	if location == "" {
		return "", analysis.NewServiceError("submit", resp.StatusCode, "MissingOperationLocation", "no operation-location header in response", analysis.ErrServiceUnavailable, 0)
	}
	if _, err := c.checkHandle(analysis.OperationHandle(location)); err != nil {
		return "", err
	}
	return analysis.OperationHandle(location), nil
}

type analyzeResultResponse struct {
	Status string     `json:"status"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	InnerError *errorBody `json:"innererror,omitempty"`
}

type errorEnvelope struct {
	Error *errorBody `json:"error"`
}

// Poll fetches the operation status and, once it succeeded, the searchable PDF.
func (c *Client) Poll(ctx context.Context, handle analysis.OperationHandle) (analysis.PollResult, error) {
	opURL, err := c.checkHandle(handle)
	if err != nil {
		return analysis.PollResult{}, err
	}

	body, err := c.get(ctx, "poll", opURL.String(), "application/json")
	if err != nil {
		return analysis.PollResult{}, err
	}

	var parsed analyzeResultResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return analysis.PollResult{}, analysis.NewServiceError("poll", http.StatusOK, "MalformedResponse", err.Error(), analysis.ErrServiceUnavailable, 0)
	}

	switch analysis.Status(parsed.Status) {
	case analysis.StatusNotStarted:
		return analysis.PollResult{Status: analysis.StatusNotStarted}, nil
	case analysis.StatusRunning:
		return analysis.PollResult{Status: analysis.StatusRunning}, nil
	case analysis.StatusFailed, "canceled":
		code, message := "Unknown", "analysis failed"
		if parsed.Error != nil {
			code, message = parsed.Error.Code, parsed.Error.Message
			if inner := parsed.Error.InnerError; inner != nil && inner.Message != "" {
				message += ": " + inner.Message
			}
		}
		return analysis.PollResult{
			Status: analysis.StatusFailed,
			Err:    analysis.NewServiceError("analyze", 0, code, message, analysis.ErrOperationFailed, 0),
		}, nil
	case analysis.StatusCompleted:
		pdfURL := *opURL
		pdfURL.Path = strings.TrimRight(pdfURL.Path, "/") + "/pdf"
		pdf, err := c.get(ctx, "fetch result", pdfURL.String(), "application/pdf")
		if err != nil {
			return analysis.PollResult{}, err
		}
		if len(pdf) == 0 {
			return analysis.PollResult{
				Status: analysis.StatusFailed,
				Err:    analysis.NewServiceError("fetch result", http.StatusOK, "EmptyResult", "service returned an empty pdf", analysis.ErrOperationFailed, 0),
			}, nil
		}
		return analysis.PollResult{Status: analysis.StatusCompleted, Result: pdf}, nil
	default:
		return analysis.PollResult{}, analysis.NewServiceError("poll", http.StatusOK, "UnknownStatus", fmt.Sprintf("unexpected status %q", parsed.Status), analysis.ErrServiceUnavailable, 0)
	}
}

func (c *Client) get(ctx context.Context, op, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", accept)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, readServiceError(op, resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if len(data) > maxResultBytes {
		return nil, analysis.NewServiceError(op, resp.StatusCode, "ResultTooLarge", fmt.Sprintf("response exceeds %d bytes", maxResultBytes), analysis.ErrInvalidDocument, 0)
	}
	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}
}

// checkHandle refuses handles pointing at another host so credentials never leave the endpoint.
func (c *Client) checkHandle(handle analysis.OperationHandle) (*url.URL, error) {
	u, err := url.Parse(string(handle))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid operation handle %q", handle)
	}
	if !strings.EqualFold(u.Host, c.endpoint.Host) {
		return nil, fmt.Errorf("operation handle host %q does not match endpoint host %q", u.Host, c.endpoint.Host)
	}
	return u, nil
}

func readServiceError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	code, message := "", strings.TrimSpace(string(raw))
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}
	return analysis.NewServiceError(op, resp.StatusCode, code, message, classifyStatus(resp.StatusCode), parseRetryAfter(resp.Header.Get("Retry-After")))
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return analysis.ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return analysis.ErrAccessDenied
	case status == http.StatusNotFound:
		return analysis.ErrOperationFailed
	case status == http.StatusRequestTimeout || status >= 500:
		return analysis.ErrServiceUnavailable
	default:
		return analysis.ErrInvalidDocument
	}
}

func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

var _ analysis.Client = (*Client)(nil)
