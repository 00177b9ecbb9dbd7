package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	neturl "net/url"
	"strings"
)

// BaseURL is the Graph mailbox root all relative paths are resolved against.
const BaseURL = "https://graph.microsoft.com/v1.0/me"

// TokenProvider supplies a bearer token for each request. Refresh is the
// provider's concern; the client only attaches what it is given.
type TokenProvider func(ctx context.Context) (string, error)

// Client issues REST calls against the Graph mailbox endpoints.
type Client struct {
	base  string
	http  *http.Client
	token TokenProvider
}

// NewClient returns a client rooted at base (BaseURL when empty).
func NewClient(base string, httpClient *http.Client, token TokenProvider) *Client {
	if base == "" {
		base = BaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient, token: token}
}

// APIError carries a non-2xx Graph response: the decoded error envelope when
// present, and the raw body either way for diagnostics.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("graph: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Call performs a JSON round trip against a path relative to the client base.
// A nil body sends no payload; a 2xx response with an empty body yields an
// empty map.
func (c *Client) Call(ctx context.Context, method, path string, query neturl.Values, body any) (map[string]any, error) {
	data, _, err := c.do(ctx, method, c.url(path, query), body, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("graph: decode %s %s: %w", method, path, err)
	}
	return out, nil
}

// CallRaw fetches an octet stream (e.g. a $value endpoint) and returns the
// bytes together with the response content type.
func (c *Client) CallRaw(ctx context.Context, method, path string) ([]byte, string, error) {
	return c.do(ctx, method, c.url(path, nil), nil, nil)
}

// FetchAll follows @odata.nextLink cursors until exhausted, concatenating the
// valueKey array across pages in page and within-page order. The next link is
// requested verbatim; it already encodes the continuation state.
func (c *Client) FetchAll(ctx context.Context, valueKey, method, path string, query neturl.Values, body any) ([]map[string]any, error) {
	url := c.url(path, query)
	var all []map[string]any
	for url != "" {
		data, _, err := c.do(ctx, method, url, body, nil)
		if err != nil {
			return nil, err
		}
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("graph: decode page: %w", err)
		}
		if raw, ok := envelope[valueKey]; ok {
			var records []map[string]any
			if err := json.Unmarshal(raw, &records); err != nil {
				return nil, fmt.Errorf("graph: decode %q page array: %w", valueKey, err)
			}
			all = append(all, records...)
		}
		var next string
		if raw, ok := envelope["@odata.nextLink"]; ok {
			_ = json.Unmarshal(raw, &next)
		}
		url = next
		// continuation pages are plain GETs of the supplied link
		if url != "" {
			method, body = http.MethodGet, nil
		}
	}
	return all, nil
}

func (c *Client) url(path string, query neturl.Values) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.base + path
	if enc := query.Encode(); enc != "" {
		url += "?" + enc
	}
	return url
}

// do executes one request. headers (optional) are set after the defaults so
// callers can override Content-Type for non-JSON payloads.
func (c *Client) do(ctx context.Context, method, url string, body any, headers map[string]string) ([]byte, string, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("graph: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, "", err
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if nodeDebug() {
		log.Printf("[outlook-node] %s %s", method, url)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("graph: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("graph: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, "", apiErr
	}
	return data, resp.Header.Get("Content-Type"), nil
}
