// Package sheets is a minimal client for a Google Sheets-style values API:
// read, clear, and update rectangular ranges of a named sheet. The mirror
// layer composes these three calls into full-table pull/push.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// Client performs value-range operations against one spreadsheet.
type Client interface {
	GetValues(ctx context.Context, rangeRef string) ([][]string, error)
	ClearValues(ctx context.Context, rangeRef string) error
	UpdateValues(ctx context.Context, rangeRef string, values [][]string) error
}

// APIError is a non-2xx response from the API. Callers inspect StatusCode to
// decide whether the failure is retryable.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token         string
	spreadsheetID string
	baseURL       string
	http          *http.Client
}

// NewClient creates a values client for one spreadsheet, authenticated with
// a bearer token.
func NewClient(token, spreadsheetID string, opts ...Option) Client {
	c := &httpClient{
		token:         token,
		spreadsheetID: spreadsheetID,
		baseURL:       defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values,omitempty"`
}

func (c *httpClient) GetValues(ctx context.Context, rangeRef string) ([][]string, error) {
	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s", c.baseURL, c.spreadsheetID, url.PathEscape(rangeRef))
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: get values")
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, eris.Wrap(err, "sheets: unmarshal values")
	}
	return vr.Values, nil
}

func (c *httpClient) ClearValues(ctx context.Context, rangeRef string) error {
	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s:clear", c.baseURL, c.spreadsheetID, url.PathEscape(rangeRef))
	if _, err := c.do(ctx, http.MethodPost, u, []byte("{}")); err != nil {
		return eris.Wrap(err, "sheets: clear values")
	}
	return nil
}

func (c *httpClient) UpdateValues(ctx context.Context, rangeRef string, values [][]string) error {
	payload, err := json.Marshal(valueRange{Values: values})
	if err != nil {
		return eris.Wrap(err, "sheets: marshal values")
	}

	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueInputOption=RAW", c.baseURL, c.spreadsheetID, url.PathEscape(rangeRef))
	if _, err := c.do(ctx, http.MethodPut, u, payload); err != nil {
		return eris.Wrap(err, "sheets: update values")
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
